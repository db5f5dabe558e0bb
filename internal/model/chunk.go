package model

type ChunkMetadata struct {
	FileName    string `json:"file_name"`
	FileType    string `json:"file_type"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	PageNumber  int    `json:"page_number,omitempty"`
	StartChar   int    `json:"start_char"`
	EndChar     int    `json:"end_char"`
}

// Chunk is a bounded span of a source file's text. Chunks are the
// source of truth; vector index entries are a disposable projection
// that can be rebuilt from chunks plus re-embedding.
type Chunk struct {
	ID        string        `json:"id"`
	CourseID  string        `json:"course_id"`
	FileID    string        `json:"file_id"`
	Content   string        `json:"content"`
	Metadata  ChunkMetadata `json:"metadata"`
	Embedding []float32     `json:"embedding,omitempty"`
	Ctime     int64         `json:"ctime"`
}
