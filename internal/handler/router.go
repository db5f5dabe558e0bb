package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Courses *CourseHandler
	Files   *FileHandler
	Chat    *ChatHandler
	Search  *SearchHandler

	// ChatLimiter throttles the answer-generation endpoint, the one
	// route whose cost is dominated by paid model calls.
	ChatLimiter gin.HandlerFunc
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/courses", deps.Courses.Create)
	api.GET("/courses", deps.Courses.List)
	api.GET("/courses/:id", deps.Courses.Get)
	api.PUT("/courses/:id", deps.Courses.Update)
	api.DELETE("/courses/:id", deps.Courses.Delete)

	api.POST("/courses/:id/files", deps.Files.Upload)
	api.GET("/courses/:id/files", deps.Files.List)
	api.DELETE("/courses/:id/files/:fileId", deps.Files.Delete)
	api.POST("/courses/:id/youtube", deps.Files.IngestYouTube)

	api.GET("/courses/:id/search", deps.Search.Search)

	if deps.ChatLimiter != nil {
		api.POST("/chat", deps.ChatLimiter, deps.Chat.Send)
	} else {
		api.POST("/chat", deps.Chat.Send)
	}
	api.GET("/chat/:courseId/history", deps.Chat.History)
}
