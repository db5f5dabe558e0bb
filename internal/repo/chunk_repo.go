package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/studyware/coursepilot/internal/model"
	"github.com/studyware/coursepilot/internal/pkg/dbutil"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

var chunkColumns = []string{
	"id", "course_id", "file_id", "content",
	"file_name", "file_type", "chunk_index", "total_chunks", "page_number", "start_char", "end_char",
	"ctime",
}

func (r *ChunkRepo) BulkCreate(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	rows := make([]map[string]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		rows = append(rows, map[string]interface{}{
			"id":           chunk.ID,
			"course_id":    chunk.CourseID,
			"file_id":      chunk.FileID,
			"content":      chunk.Content,
			"file_name":    chunk.Metadata.FileName,
			"file_type":    chunk.Metadata.FileType,
			"chunk_index":  chunk.Metadata.ChunkIndex,
			"total_chunks": chunk.Metadata.TotalChunks,
			"page_number":  chunk.Metadata.PageNumber,
			"start_char":   chunk.Metadata.StartChar,
			"end_char":     chunk.Metadata.EndChar,
			"ctime":        chunk.Ctime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("chunks", rows)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) ListByFile(ctx context.Context, courseID, fileID string) ([]model.Chunk, error) {
	return r.list(ctx, map[string]interface{}{
		"course_id": courseID,
		"file_id":   fileID,
		"_orderby":  "chunk_index asc",
	})
}

func (r *ChunkRepo) ListByCourse(ctx context.Context, courseID string) ([]model.Chunk, error) {
	return r.list(ctx, map[string]interface{}{
		"course_id": courseID,
		"_orderby":  "file_id asc, chunk_index asc",
	})
}

func (r *ChunkRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Chunk, error) {
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chunks := make([]model.Chunk, 0)
	for rows.Next() {
		var chunk model.Chunk
		if err := scanChunk(rows, &chunk); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepo) DeleteByFile(ctx context.Context, courseID, fileID string) error {
	sqlStr, args := dbutil.Finalize(
		"DELETE FROM chunks WHERE course_id=? AND file_id=?",
		[]interface{}{courseID, fileID},
	)
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) DeleteByCourse(ctx context.Context, courseID string) error {
	sqlStr, args := dbutil.Finalize(
		"DELETE FROM chunks WHERE course_id=?",
		[]interface{}{courseID},
	)
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *ChunkRepo) CountByFile(ctx context.Context, courseID, fileID string) (int, error) {
	sqlStr, args := dbutil.Finalize(
		"SELECT COUNT(*) FROM chunks WHERE course_id=? AND file_id=?",
		[]interface{}{courseID, fileID},
	)
	var count int
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanChunk(rows *sql.Rows, chunk *model.Chunk) error {
	return rows.Scan(
		&chunk.ID, &chunk.CourseID, &chunk.FileID, &chunk.Content,
		&chunk.Metadata.FileName, &chunk.Metadata.FileType,
		&chunk.Metadata.ChunkIndex, &chunk.Metadata.TotalChunks,
		&chunk.Metadata.PageNumber, &chunk.Metadata.StartChar, &chunk.Metadata.EndChar,
		&chunk.Ctime,
	)
}
