package vecstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	appErr "github.com/studyware/coursepilot/internal/pkg/errors"
)

type postgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) Store {
	return &postgresStore{db: db}
}

func (s *postgresStore) Upsert(ctx context.Context, courseID string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	const query = `
		INSERT INTO vector_entries (
			chunk_id, course_id, file_id, document, embedding,
			file_name, file_type, chunk_index, total_chunks, page_number, start_char, end_char
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (chunk_id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			file_id = EXCLUDED.file_id,
			document = EXCLUDED.document,
			embedding = EXCLUDED.embedding,
			file_name = EXCLUDED.file_name,
			file_type = EXCLUDED.file_type,
			chunk_index = EXCLUDED.chunk_index,
			total_chunks = EXCLUDED.total_chunks,
			page_number = EXCLUDED.page_number,
			start_char = EXCLUDED.start_char,
			end_char = EXCLUDED.end_char
	`
	// One transaction per upsert call so a concurrent query never sees
	// a half-written batch.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin upsert: %v", appErr.ErrIndexUnavailable, err)
	}
	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, query,
			entry.ChunkID,
			courseID,
			entry.FileID,
			entry.Document,
			pgvector.NewVector(entry.Embedding),
			entry.Metadata.FileName,
			entry.Metadata.FileType,
			entry.Metadata.ChunkIndex,
			entry.Metadata.TotalChunks,
			entry.Metadata.PageNumber,
			entry.Metadata.StartChar,
			entry.Metadata.EndChar,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: upsert entry %s: %v", appErr.ErrIndexUnavailable, entry.ChunkID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit upsert: %v", appErr.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *postgresStore) Query(ctx context.Context, courseID string, vector []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	const query = `
		SELECT chunk_id, file_id, document,
			file_name, file_type, chunk_index, total_chunks, page_number, start_char, end_char,
			embedding <=> $2 AS distance
		FROM vector_entries
		WHERE course_id = $1
		ORDER BY distance ASC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, query, courseID, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("%w: query partition %s: %v", appErr.ErrIndexUnavailable, courseID, err)
	}
	defer rows.Close()
	matches := make([]Match, 0, k)
	for rows.Next() {
		var m Match
		if err := rows.Scan(
			&m.ChunkID, &m.FileID, &m.Document,
			&m.Metadata.FileName, &m.Metadata.FileType,
			&m.Metadata.ChunkIndex, &m.Metadata.TotalChunks,
			&m.Metadata.PageNumber, &m.Metadata.StartChar, &m.Metadata.EndChar,
			&m.Distance,
		); err != nil {
			return nil, fmt.Errorf("%w: scan match: %v", appErr.ErrIndexUnavailable, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate matches: %v", appErr.ErrIndexUnavailable, err)
	}
	return matches, nil
}

func (s *postgresStore) Delete(ctx context.Context, courseID string, chunkIDs []string) error {
	if len(chunkIDs) == 0 {
		return nil
	}
	const query = `DELETE FROM vector_entries WHERE course_id = $1 AND chunk_id = ANY($2)`
	if _, err := s.db.ExecContext(ctx, query, courseID, pq.Array(chunkIDs)); err != nil {
		return fmt.Errorf("%w: delete chunks: %v", appErr.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *postgresStore) DeleteFile(ctx context.Context, courseID, fileID string) error {
	const query = `DELETE FROM vector_entries WHERE course_id = $1 AND file_id = $2`
	if _, err := s.db.ExecContext(ctx, query, courseID, fileID); err != nil {
		return fmt.Errorf("%w: delete file entries: %v", appErr.ErrIndexUnavailable, err)
	}
	return nil
}

func (s *postgresStore) DeleteCourse(ctx context.Context, courseID string) error {
	const query = `DELETE FROM vector_entries WHERE course_id = $1`
	if _, err := s.db.ExecContext(ctx, query, courseID); err != nil {
		return fmt.Errorf("%w: delete course partition: %v", appErr.ErrIndexUnavailable, err)
	}
	return nil
}
