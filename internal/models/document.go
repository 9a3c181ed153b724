package models

// Document is a unit of corpus source text before chunking.
type Document struct {
	ID       string
	URL      string
	Title    string
	Content  string
	Metadata map[string]interface{}
}

// Chunk is a bounded slice of corpus text used as a retrieval unit.
// SourceOffset is the byte offset of Text within the chunked corpus.
type Chunk struct {
	Text         string `json:"page_content"`
	SourceOffset int    `json:"source_offset"`
}

type EmbeddedChunk struct {
	Chunk  Chunk
	Vector []float32
}
