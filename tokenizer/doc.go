// Copyright (c) OpsMind Authors.
// Licensed under the MIT License.

/*
Package tokenizer provides pluggable token counting for the prompt-budget
core.

The Tokenizer interface is the single counting contract: every text fragment
(system prompt, user message, retrieval passage, history turn) is counted
individually so trimming can later happen at item granularity.

Two implementations ship with the module:

  - TiktokenTokenizer: exact BPE counting for OpenAI-family models via
    pkoukk/tiktoken-go, lazily initialized
  - EstimatorTokenizer: CJK-aware character-ratio estimation for models
    without a registered exact tokenizer

A process-wide registry maps model names to tokenizers with prefix matching
("gpt-4o" also serves "gpt-4o-mini" unless the latter is registered
explicitly). GetTokenizerOrEstimator never fails: unknown models fall back
to the estimator.
*/
package tokenizer
