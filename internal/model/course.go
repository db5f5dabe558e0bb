package model

type Course struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Color          string `json:"color"`
	Icon           string `json:"icon"`
	FileCount      int    `json:"file_count"`
	EmbeddingCount int    `json:"embedding_count"`
	Ctime          int64  `json:"ctime"`
	Mtime          int64  `json:"mtime"`
	LastAccessed   int64  `json:"last_accessed"`
}
