package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/studyware/coursepilot/internal/model"
	"github.com/studyware/coursepilot/internal/pkg/errcode"
	"github.com/studyware/coursepilot/internal/pkg/response"
	"github.com/studyware/coursepilot/internal/service"
)

type ChatHandler struct {
	queries *service.QueryService
}

func NewChatHandler(queries *service.QueryService) *ChatHandler {
	return &ChatHandler{queries: queries}
}

func (h *ChatHandler) Send(c *gin.Context) {
	var req model.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	answer, err := h.queries.Query(c.Request.Context(), &req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}

// History exists for client compatibility. Conversations are not
// persisted, so it always returns an empty list.
func (h *ChatHandler) History(c *gin.Context) {
	response.Success(c, []model.Answer{})
}
