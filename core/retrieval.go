package core

// RetrievedDocument is a ranked text snippet returned by the vector
// retriever. It is folded into the prompt for one turn and never
// persisted on its own.
type RetrievedDocument struct {
	Text       string  `json:"text"`
	SourceType string  `json:"source_type"`
	SourceID   string  `json:"source_id"`
	Score      float32 `json:"score"`
}
