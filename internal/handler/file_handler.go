package handler

import (
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/studyware/coursepilot/internal/pkg/errcode"
	"github.com/studyware/coursepilot/internal/pkg/response"
	"github.com/studyware/coursepilot/internal/service"
)

type FileHandler struct {
	ingest *service.IngestService
}

func NewFileHandler(ingest *service.IngestService) *FileHandler {
	return &FileHandler{ingest: ingest}
}

// Upload spools the multipart body to a temp file so the extractor can
// hand a real path to its external tools, then runs the full ingestion.
func (h *FileHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errcode.ErrInvalidFile, "file is required")
		return
	}
	tmpPath := filepath.Join(os.TempDir(), "upload-"+uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, tmpPath); err != nil {
		response.Error(c, errcode.ErrUploadFailed, "failed to save upload")
		return
	}
	defer os.Remove(tmpPath)

	ingested, err := h.ingest.IngestFile(c.Request.Context(), c.Param("id"), file.Filename, file.Size, tmpPath)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, ingested)
}

type youtubeRequest struct {
	URL string `json:"url"`
}

func (h *FileHandler) IngestYouTube(c *gin.Context) {
	var req youtubeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	file, err := h.ingest.IngestYouTube(c.Request.Context(), c.Param("id"), req.URL)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, file)
}

func (h *FileHandler) List(c *gin.Context) {
	files, err := h.ingest.ListFiles(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, files)
}

func (h *FileHandler) Delete(c *gin.Context) {
	if err := h.ingest.DeleteFile(c.Request.Context(), c.Param("id"), c.Param("fileId")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
