package vecstore

import (
	"context"
	"sort"
	"sync"
)

// memoryStore keeps partitions in process memory and scans them with a
// cosine pass. Search uses the same scan-and-sort shape as the
// postgres backend so the two are interchangeable in tests.
type memoryStore struct {
	mu         sync.RWMutex
	partitions map[string]map[string]Entry
}

func NewMemory() Store {
	return &memoryStore{partitions: make(map[string]map[string]Entry)}
}

func (s *memoryStore) Upsert(ctx context.Context, courseID string, entries []Entry) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	part := s.partitions[courseID]
	if part == nil {
		part = make(map[string]Entry, len(entries))
		s.partitions[courseID] = part
	}
	for _, entry := range entries {
		cloned := entry
		cloned.Embedding = append([]float32(nil), entry.Embedding...)
		part[entry.ChunkID] = cloned
	}
	return nil
}

func (s *memoryStore) Query(ctx context.Context, courseID string, vector []float32, k int) ([]Match, error) {
	_ = ctx
	if k <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	part := s.partitions[courseID]
	if len(part) == 0 {
		return []Match{}, nil
	}
	matches := make([]Match, 0, len(part))
	for _, entry := range part {
		matches = append(matches, Match{
			ChunkID:  entry.ChunkID,
			FileID:   entry.FileID,
			Document: entry.Document,
			Metadata: entry.Metadata,
			Distance: 1 - CosineSimilarity(vector, entry.Embedding),
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ChunkID < matches[j].ChunkID
	})
	if k < len(matches) {
		matches = matches[:k]
	}
	return matches, nil
}

func (s *memoryStore) Delete(ctx context.Context, courseID string, chunkIDs []string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	part := s.partitions[courseID]
	for _, id := range chunkIDs {
		delete(part, id)
	}
	return nil
}

func (s *memoryStore) DeleteFile(ctx context.Context, courseID, fileID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.partitions[courseID] {
		if entry.FileID == fileID {
			delete(s.partitions[courseID], id)
		}
	}
	return nil
}

func (s *memoryStore) DeleteCourse(ctx context.Context, courseID string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.partitions, courseID)
	return nil
}
