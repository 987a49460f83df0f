// Copyright (c) OpsMind Authors.
// Licensed under the MIT License.

/*
Package types provides the shared value types of the opsmind prompt-budget
core.

types is the lowest-level package of the module and depends on no other
opsmind package. It defines the type contract shared by the prompt, usage,
and config packages:

  - Role / ConversationTurn: conversation history entries with token counts,
    relevance scores, topic tags, and summarization audit fields
  - RankedItem: a relevance-scored retrieval passage
  - TokenUsage: prompt/completion token and cost accumulator
  - Error / ErrorCode: structured error taxonomy (configuration,
    tokenizer, overflow)
*/
package types
