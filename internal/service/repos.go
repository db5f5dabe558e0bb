package service

import (
	"context"

	"github.com/studyware/coursepilot/internal/model"
)

// Repository interfaces mirror the internal/repo types; services accept
// these so tests can substitute in-memory fakes.

type CourseRepository interface {
	Create(ctx context.Context, course *model.Course) error
	GetByID(ctx context.Context, courseID string) (*model.Course, error)
	List(ctx context.Context) ([]model.Course, error)
	Update(ctx context.Context, course *model.Course) error
	Delete(ctx context.Context, courseID string) error
	AdjustCounters(ctx context.Context, courseID string, fileDelta, embeddingDelta int, mtime int64) error
	TouchLastAccessed(ctx context.Context, courseID string, ts int64) error
}

type FileRepository interface {
	Create(ctx context.Context, file *model.CourseFile) error
	GetByID(ctx context.Context, courseID, fileID string) (*model.CourseFile, error)
	ListByCourse(ctx context.Context, courseID string) ([]model.CourseFile, error)
	ListUnprocessed(ctx context.Context, limit uint) ([]model.CourseFile, error)
	MarkProcessed(ctx context.Context, fileID string, processed bool) error
	Delete(ctx context.Context, courseID, fileID string) error
	DeleteByCourse(ctx context.Context, courseID string) error
}

type ChunkRepository interface {
	BulkCreate(ctx context.Context, chunks []model.Chunk) error
	ListByFile(ctx context.Context, courseID, fileID string) ([]model.Chunk, error)
	DeleteByFile(ctx context.Context, courseID, fileID string) error
	DeleteByCourse(ctx context.Context, courseID string) error
	CountByFile(ctx context.Context, courseID, fileID string) (int, error)
}
