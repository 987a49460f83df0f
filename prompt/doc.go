// Copyright (c) OpsMind Authors.
// Licensed under the MIT License.

/*
Package prompt implements the context-budget management core: for every
outbound model call it decides what subset of system instructions, user
input, retrieval context, and prior conversation turns fits a fixed token
budget without silently corrupting meaning.

# Components

  - Estimator: composes per-fragment token counts into a
    TokenEstimate with utilization and over-limit flags
  - RetrievalOptimizer: greedy relevance-ranked selection of retrieval
    passages under a token ceiling, with minimum-count guarantees and
    optional per-item trimming
  - HistoryOptimizer: pluggable conversation pruning strategies
    (recent messages, relevance scoring, summarization, topic-based,
    assistant-response compression) with a convergence fallback
  - PromptOptimizer: the root allocator; estimates, short-circuits
    when within budget, otherwise trims the reducible categories in
    priority order and re-estimates

All components are pure and stateless over their inputs; they are safe to
call concurrently without locking. The system prompt and user message always
round-trip unchanged; only retrieval context and history are reducible.
Over-limit after best effort is a result state (ExceedsLimit plus warnings),
never an error.
*/
package prompt
