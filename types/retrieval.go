package types

// Well-known RankedItem metadata keys. Metadata is a typed string map rather
// than an open-ended bag so serialization and tests stay deterministic.
const (
	MetaDocumentID    = "document_id"
	MetaDocumentTitle = "document_title"
	MetaSection       = "section"
	MetaRetriever     = "retriever"
)

// RankedItem is a retrieval passage produced by the external search
// collaborator, already relevance-ranked. The optimizer owns it read-only
// for the duration of one call.
type RankedItem struct {
	Content    string            `json:"content"`
	Score      float64           `json:"score"` // relevance in [0.0, 1.0]
	Source     string            `json:"source,omitempty"`
	TokenCount int               `json:"token_count,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}
