package vecstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/studyware/coursepilot/internal/model"
)

// Entry is the persisted projection of a chunk plus its embedding,
// keyed by chunk id inside a per-course partition.
type Entry struct {
	ChunkID   string
	FileID    string
	Document  string
	Embedding []float32
	Metadata  model.ChunkMetadata
}

// Match is one nearest-neighbor result. Distance is cosine distance;
// the user-facing relevance score is 1-Distance.
type Match struct {
	ChunkID  string
	FileID   string
	Document string
	Metadata model.ChunkMetadata
	Distance float64
}

// Store is a per-course partitioned nearest-neighbor index over cosine
// similarity. Upsert replaces entries with the same chunk id; a query
// never observes a partially written upsert. All deletes are
// idempotent.
type Store interface {
	Upsert(ctx context.Context, courseID string, entries []Entry) error
	Query(ctx context.Context, courseID string, vector []float32, k int) ([]Match, error)
	Delete(ctx context.Context, courseID string, chunkIDs []string) error
	DeleteFile(ctx context.Context, courseID, fileID string) error
	DeleteCourse(ctx context.Context, courseID string) error
}

func New(typ string, db *sql.DB) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "memory":
		return NewMemory(), nil
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("postgres vector store requires a database")
		}
		return NewPostgres(db), nil
	default:
		return nil, fmt.Errorf("unsupported vector store type: %s", typ)
	}
}

// CosineSimilarity returns the angle-based similarity of two vectors.
// Mismatched lengths and zero-magnitude vectors yield 0 rather than an
// error, so degenerate embeddings rank last instead of failing a query.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
