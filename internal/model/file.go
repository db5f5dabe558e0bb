package model

// CourseFile is one ingested unit: an uploaded document or a YouTube
// video transcript. Immutable after ingestion except for deletion.
type CourseFile struct {
	ID         string `json:"id"`
	CourseID   string `json:"course_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Size       int64  `json:"size"`
	StorageKey string `json:"storage_key"`
	Processed  bool   `json:"processed"`
	UploadedAt int64  `json:"uploaded_at"`
}
