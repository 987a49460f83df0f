// Package types provides core types used across the opsmind prompt-budget core.
// This package has ZERO dependencies on other opsmind packages to avoid circular imports.
// All other packages should import types from here.
package types

import "time"

// Role represents the role of a conversation participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is a single turn of conversation history.
//
// Relevance defaults to 1.0 when unset; it is supplied by the caller, this
// core never derives it. When a turn is summarized the original content is
// retained in OriginalContent for audit, never discarded.
type ConversationTurn struct {
	Role            Role      `json:"role"`
	Content         string    `json:"content"`
	Timestamp       time.Time `json:"timestamp,omitempty"`
	TokenCount      int       `json:"token_count,omitempty"`
	Relevance       float64   `json:"relevance,omitempty"`
	Topics          []string  `json:"topics,omitempty"`
	WasSummarized   bool      `json:"was_summarized,omitempty"`
	OriginalContent string    `json:"original_content,omitempty"`
}

// NewTurn creates a turn with the default relevance score.
func NewTurn(role Role, content string) ConversationTurn {
	return ConversationTurn{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
		Relevance: 1.0,
	}
}

// NewUserTurn creates a user turn.
func NewUserTurn(content string) ConversationTurn {
	return NewTurn(RoleUser, content)
}

// NewAssistantTurn creates an assistant turn.
func NewAssistantTurn(content string) ConversationTurn {
	return NewTurn(RoleAssistant, content)
}

// EffectiveRelevance returns the turn's relevance score, defaulting to 1.0
// when the caller left it unset.
func (t ConversationTurn) EffectiveRelevance() float64 {
	if t.Relevance == 0 {
		return 1.0
	}
	return t.Relevance
}

// HasTopic reports whether the turn is tagged with the given topic.
func (t ConversationTurn) HasTopic(topic string) bool {
	for _, tag := range t.Topics {
		if tag == topic {
			return true
		}
	}
	return false
}
