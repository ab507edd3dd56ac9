package vectorindex

// Chunk is a contiguous span of a source document's text, the unit of
// embedding and retrieval. Chunks are created during ingestion and never
// mutated afterwards.
type Chunk struct {
	Document string `json:"document"` // file path of the source document
	Position int    `json:"position"`
	Text     string `json:"text"`
	Source   string `json:"source,omitempty"` // origin URL, when known
	Tags     string `json:"tags,omitempty"`
}

// Scored pairs a chunk with its similarity score for one query.
type Scored struct {
	Chunk Chunk
	Score float32
}
