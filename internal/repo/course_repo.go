package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/studyware/coursepilot/internal/model"
	"github.com/studyware/coursepilot/internal/pkg/dbutil"
	appErr "github.com/studyware/coursepilot/internal/pkg/errors"
)

type CourseRepo struct {
	db *sql.DB
}

func NewCourseRepo(db *sql.DB) *CourseRepo {
	return &CourseRepo{db: db}
}

var courseColumns = []string{
	"id", "name", "description", "color", "icon",
	"file_count", "embedding_count", "ctime", "mtime", "last_accessed",
}

func (r *CourseRepo) Create(ctx context.Context, course *model.Course) error {
	data := map[string]interface{}{
		"id":              course.ID,
		"name":            course.Name,
		"description":     course.Description,
		"color":           course.Color,
		"icon":            course.Icon,
		"file_count":      course.FileCount,
		"embedding_count": course.EmbeddingCount,
		"ctime":           course.Ctime,
		"mtime":           course.Mtime,
		"last_accessed":   course.LastAccessed,
	}
	sqlStr, args, err := builder.BuildInsert("courses", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *CourseRepo) GetByID(ctx context.Context, courseID string) (*model.Course, error) {
	sqlStr, args, err := builder.BuildSelect("courses", map[string]interface{}{"id": courseID}, courseColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	var course model.Course
	if err := scanCourse(rows, &course); err != nil {
		return nil, err
	}
	return &course, nil
}

func (r *CourseRepo) List(ctx context.Context) ([]model.Course, error) {
	sqlStr, args, err := builder.BuildSelect("courses", map[string]interface{}{
		"_orderby": "last_accessed desc",
	}, courseColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	courses := make([]model.Course, 0)
	for rows.Next() {
		var course model.Course
		if err := scanCourse(rows, &course); err != nil {
			return nil, err
		}
		courses = append(courses, course)
	}
	return courses, rows.Err()
}

func (r *CourseRepo) Update(ctx context.Context, course *model.Course) error {
	where := map[string]interface{}{"id": course.ID}
	update := map[string]interface{}{
		"name":        course.Name,
		"description": course.Description,
		"color":       course.Color,
		"icon":        course.Icon,
		"mtime":       course.Mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("courses", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *CourseRepo) Delete(ctx context.Context, courseID string) error {
	sqlStr, args, err := builder.BuildDelete("courses", map[string]interface{}{"id": courseID})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// AdjustCounters shifts the cached file and embedding counts without
// racing concurrent ingests.
func (r *CourseRepo) AdjustCounters(ctx context.Context, courseID string, fileDelta, embeddingDelta int, mtime int64) error {
	sqlStr, args := dbutil.Finalize(
		"UPDATE courses SET file_count=file_count+?, embedding_count=embedding_count+?, mtime=? WHERE id=?",
		[]interface{}{fileDelta, embeddingDelta, mtime, courseID},
	)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *CourseRepo) TouchLastAccessed(ctx context.Context, courseID string, ts int64) error {
	sqlStr, args := dbutil.Finalize(
		"UPDATE courses SET last_accessed=? WHERE id=?",
		[]interface{}{ts, courseID},
	)
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func scanCourse(rows *sql.Rows, course *model.Course) error {
	return rows.Scan(
		&course.ID, &course.Name, &course.Description, &course.Color, &course.Icon,
		&course.FileCount, &course.EmbeddingCount, &course.Ctime, &course.Mtime, &course.LastAccessed,
	)
}
