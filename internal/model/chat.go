package model

type QueryRequest struct {
	CourseID              string `json:"course_id"`
	Query                 string `json:"query"`
	UseWebSearch          bool   `json:"use_web_search"`
	MaxSources            int    `json:"max_sources"`
	RequireCrossReference bool   `json:"require_cross_reference"`
}

// Source points an answer back at the chunk it was grounded on.
// RelevanceScore is 1 minus the index's cosine distance, a linear
// remap of similarity, not a calibrated probability.
type Source struct {
	FileID         string  `json:"file_id"`
	FileName       string  `json:"file_name"`
	RelevanceScore float64 `json:"relevance_score"`
	Excerpt        string  `json:"excerpt"`
	PageNumber     int     `json:"page_number,omitempty"`
}

type Answer struct {
	ID               string   `json:"id"`
	Role             string   `json:"role"`
	Content          string   `json:"content"`
	Timestamp        int64    `json:"timestamp"`
	Sources          []Source `json:"sources"`
	WebSearchEnabled bool     `json:"web_search_enabled"`
}
