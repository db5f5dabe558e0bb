package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/studyware/coursepilot/internal/filestore"
	"github.com/studyware/coursepilot/internal/model"
	appErr "github.com/studyware/coursepilot/internal/pkg/errors"
	"github.com/studyware/coursepilot/internal/pkg/timeutil"
	"github.com/studyware/coursepilot/internal/vecstore"
)

type CourseService struct {
	courses CourseRepository
	files   FileRepository
	chunks  ChunkRepository
	vectors vecstore.Store
	store   filestore.Store
}

func NewCourseService(
	courses CourseRepository,
	files FileRepository,
	chunks ChunkRepository,
	vectors vecstore.Store,
	store filestore.Store,
) *CourseService {
	return &CourseService{
		courses: courses,
		files:   files,
		chunks:  chunks,
		vectors: vectors,
		store:   store,
	}
}

func (s *CourseService) Create(ctx context.Context, name, description, color, icon string) (*model.Course, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErr.ErrInvalid
	}
	now := timeutil.NowMilli()
	course := &model.Course{
		ID:           newID(),
		Name:         name,
		Description:  description,
		Color:        color,
		Icon:         icon,
		Ctime:        now,
		Mtime:        now,
		LastAccessed: now,
	}
	if err := s.courses.Create(ctx, course); err != nil {
		return nil, err
	}
	return course, nil
}

func (s *CourseService) Get(ctx context.Context, courseID string) (*model.Course, error) {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.courses.TouchLastAccessed(ctx, courseID, timeutil.NowMilli()); err != nil {
		logutil.GetLogger(ctx).Warn("touch last accessed failed",
			zap.String("course_id", courseID), zap.Error(err))
	}
	return course, nil
}

func (s *CourseService) List(ctx context.Context) ([]model.Course, error) {
	return s.courses.List(ctx)
}

func (s *CourseService) Update(ctx context.Context, courseID, name, description, color, icon string) (*model.Course, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, appErr.ErrInvalid
	}
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, err
	}
	course.Name = name
	course.Description = description
	course.Color = color
	course.Icon = icon
	course.Mtime = timeutil.NowMilli()
	if err := s.courses.Update(ctx, course); err != nil {
		return nil, err
	}
	return course, nil
}

// Delete removes the course and everything hanging off it: stored
// uploads, chunk rows and the whole vector partition. The partition
// goes first so a concurrent query cannot retrieve chunks of a course
// that no longer exists.
func (s *CourseService) Delete(ctx context.Context, courseID string) error {
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return err
	}
	if err := s.vectors.DeleteCourse(ctx, courseID); err != nil {
		return err
	}
	if err := s.chunks.DeleteByCourse(ctx, courseID); err != nil {
		return err
	}
	files, err := s.files.ListByCourse(ctx, courseID)
	if err != nil {
		return err
	}
	for _, file := range files {
		if file.StorageKey == "" {
			continue
		}
		if err := s.store.Delete(ctx, file.StorageKey); err != nil {
			logutil.GetLogger(ctx).Warn("delete stored file failed",
				zap.String("file_id", file.ID), zap.String("key", file.StorageKey), zap.Error(err))
		}
	}
	if err := s.files.DeleteByCourse(ctx, courseID); err != nil {
		return err
	}
	return s.courses.Delete(ctx, courseID)
}
