package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studyware/coursepilot/internal/pkg/response"
	"github.com/studyware/coursepilot/internal/service"
)

type SearchHandler struct {
	queries *service.QueryService
}

func NewSearchHandler(queries *service.QueryService) *SearchHandler {
	return &SearchHandler{queries: queries}
}

// Search exposes the raw ranked retrieval for debugging and UI
// previews, no answer generation involved.
func (h *SearchHandler) Search(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	matches, err := h.queries.Search(c.Request.Context(), c.Param("id"), c.Query("q"), limit)
	if err != nil {
		handleError(c, err)
		return
	}
	type searchResult struct {
		ChunkID        string  `json:"chunk_id"`
		FileID         string  `json:"file_id"`
		FileName       string  `json:"file_name"`
		Content        string  `json:"content"`
		RelevanceScore float64 `json:"relevance_score"`
	}
	results := make([]searchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, searchResult{
			ChunkID:        m.ChunkID,
			FileID:         m.FileID,
			FileName:       m.Metadata.FileName,
			Content:        m.Document,
			RelevanceScore: 1 - m.Distance,
		})
	}
	response.Success(c, results)
}
