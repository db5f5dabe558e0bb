package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/studyware/coursepilot/internal/model"
	"github.com/studyware/coursepilot/internal/pkg/dbutil"
	appErr "github.com/studyware/coursepilot/internal/pkg/errors"
)

type FileRepo struct {
	db *sql.DB
}

func NewFileRepo(db *sql.DB) *FileRepo {
	return &FileRepo{db: db}
}

var fileColumns = []string{
	"id", "course_id", "name", "type", "size", "storage_key", "processed", "uploaded_at",
}

func (r *FileRepo) Create(ctx context.Context, file *model.CourseFile) error {
	data := map[string]interface{}{
		"id":          file.ID,
		"course_id":   file.CourseID,
		"name":        file.Name,
		"type":        file.Type,
		"size":        file.Size,
		"storage_key": file.StorageKey,
		"processed":   file.Processed,
		"uploaded_at": file.UploadedAt,
	}
	sqlStr, args, err := builder.BuildInsert("course_files", []map[string]interface{}{data})
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

func (r *FileRepo) GetByID(ctx context.Context, courseID, fileID string) (*model.CourseFile, error) {
	sqlStr, args, err := builder.BuildSelect("course_files", map[string]interface{}{
		"id":        fileID,
		"course_id": courseID,
	}, fileColumns)
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
	var file model.CourseFile
	if err := scanFile(rows, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

func (r *FileRepo) ListByCourse(ctx context.Context, courseID string) ([]model.CourseFile, error) {
	sqlStr, args, err := builder.BuildSelect("course_files", map[string]interface{}{
		"course_id": courseID,
		"_orderby":  "uploaded_at desc",
	}, fileColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	files := make([]model.CourseFile, 0)
	for rows.Next() {
		var file model.CourseFile
		if err := scanFile(rows, &file); err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

// ListUnprocessed returns files whose ingestion never completed, oldest first.
func (r *FileRepo) ListUnprocessed(ctx context.Context, limit uint) ([]model.CourseFile, error) {
	sqlStr, args, err := builder.BuildSelect("course_files", map[string]interface{}{
		"processed": false,
		"_orderby":  "uploaded_at asc",
		"_limit":    []uint{limit},
	}, fileColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	files := make([]model.CourseFile, 0)
	for rows.Next() {
		var file model.CourseFile
		if err := scanFile(rows, &file); err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}

func (r *FileRepo) MarkProcessed(ctx context.Context, fileID string, processed bool) error {
	sqlStr, args, err := builder.BuildUpdate("course_files",
		map[string]interface{}{"id": fileID},
		map[string]interface{}{"processed": processed},
	)
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

func (r *FileRepo) Delete(ctx context.Context, courseID, fileID string) error {
	sqlStr, args, err := builder.BuildDelete("course_files", map[string]interface{}{
		"id":        fileID,
		"course_id": courseID,
	})
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

func (r *FileRepo) DeleteByCourse(ctx context.Context, courseID string) error {
	sqlStr, args := dbutil.Finalize(
		"DELETE FROM course_files WHERE course_id=?",
		[]interface{}{courseID},
	)
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func scanFile(rows *sql.Rows, file *model.CourseFile) error {
	return rows.Scan(
		&file.ID, &file.CourseID, &file.Name, &file.Type, &file.Size,
		&file.StorageKey, &file.Processed, &file.UploadedAt,
	)
}
