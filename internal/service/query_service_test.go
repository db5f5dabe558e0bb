package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"

	"github.com/studyware/coursepilot/internal/model"
	appErr "github.com/studyware/coursepilot/internal/pkg/errors"
	"github.com/studyware/coursepilot/internal/vecstore"
)

type stubCourses struct {
	courses map[string]*model.Course
}

func newStubCourses(ids ...string) *stubCourses {
	s := &stubCourses{courses: make(map[string]*model.Course)}
	for _, id := range ids {
		s.courses[id] = &model.Course{ID: id, Name: "course " + id}
	}
	return s
}

func (s *stubCourses) Create(ctx context.Context, course *model.Course) error {
	s.courses[course.ID] = course
	return nil
}

func (s *stubCourses) GetByID(ctx context.Context, courseID string) (*model.Course, error) {
	course, ok := s.courses[courseID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	copied := *course
	return &copied, nil
}

func (s *stubCourses) List(ctx context.Context) ([]model.Course, error) {
	out := make([]model.Course, 0, len(s.courses))
	for _, course := range s.courses {
		out = append(out, *course)
	}
	return out, nil
}

func (s *stubCourses) Update(ctx context.Context, course *model.Course) error {
	if _, ok := s.courses[course.ID]; !ok {
		return appErr.ErrNotFound
	}
	s.courses[course.ID] = course
	return nil
}

func (s *stubCourses) Delete(ctx context.Context, courseID string) error {
	if _, ok := s.courses[courseID]; !ok {
		return appErr.ErrNotFound
	}
	delete(s.courses, courseID)
	return nil
}

func (s *stubCourses) AdjustCounters(ctx context.Context, courseID string, fileDelta, embeddingDelta int, mtime int64) error {
	course, ok := s.courses[courseID]
	if !ok {
		return appErr.ErrNotFound
	}
	course.FileCount += fileDelta
	course.EmbeddingCount += embeddingDelta
	course.Mtime = mtime
	return nil
}

func (s *stubCourses) TouchLastAccessed(ctx context.Context, courseID string, ts int64) error {
	if course, ok := s.courses[courseID]; ok {
		course.LastAccessed = ts
	}
	return nil
}

// stubQueryVectors returns initial on the first query and extra on
// every later one, which is how the cross-reference fan-out is told
// apart from the initial retrieval.
type stubQueryVectors struct {
	vecstore.Store

	mu      sync.Mutex
	initial []vecstore.Match
	extra   []vecstore.Match
	calls   int
	ks      []int
	err     error
}

func (s *stubQueryVectors) Query(ctx context.Context, courseID string, vector []float32, k int) ([]vecstore.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.calls++
	s.ks = append(s.ks, k)
	if s.calls == 1 {
		return s.initial, nil
	}
	return s.extra, nil
}

type stubEmbedder struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []float32{1, 0, 0}, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		emb, err := s.Embed(ctx, text, taskType)
		if err != nil {
			return nil, err
		}
		out = append(out, emb)
	}
	return out, nil
}

type stubGenerator struct {
	gotQuery   string
	gotContext string
	gotWeb     bool
	answer     string
	err        error
}

func (s *stubGenerator) Answer(ctx context.Context, query string, contextBlock string, useWebSearch bool) (string, error) {
	s.gotQuery = query
	s.gotContext = contextBlock
	s.gotWeb = useWebSearch
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func matchFor(chunkID, fileID, fileName, fileType, document string, distance float64) vecstore.Match {
	return vecstore.Match{
		ChunkID:  chunkID,
		FileID:   fileID,
		Document: document,
		Metadata: model.ChunkMetadata{FileName: fileName, FileType: fileType},
		Distance: distance,
	}
}

func TestQueryValidation(t *testing.T) {
	svc := NewQueryService(newStubCourses("c1"), &stubQueryVectors{}, &stubEmbedder{}, &stubGenerator{answer: "ok"}, QueryConfig{})

	_, err := svc.Query(context.Background(), &model.QueryRequest{CourseID: "c1", Query: "   "})
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = svc.Query(context.Background(), &model.QueryRequest{CourseID: "", Query: "hi"})
	require.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = svc.Query(context.Background(), &model.QueryRequest{CourseID: "missing", Query: "hi"})
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestQueryAnswerAndSources(t *testing.T) {
	longDoc := "mitochondria " + strings.Repeat("is the powerhouse of the cell ", 10)
	require.Greater(t, len(longDoc), 200)
	vectors := &stubQueryVectors{
		initial: []vecstore.Match{
			matchFor("ch1", "f1", "biology.pdf", "pdf", longDoc, 0.25),
			matchFor("ch2", "f1", "biology.pdf", "pdf", "short chunk about mitochondria", 0.5),
		},
	}
	gen := &stubGenerator{answer: "The mitochondria is the powerhouse of the cell."}
	svc := NewQueryService(newStubCourses("c1"), vectors, &stubEmbedder{}, gen, QueryConfig{})

	answer, err := svc.Query(context.Background(), &model.QueryRequest{
		CourseID: "c1",
		Query:    "mitochondria powerhouse cell",
	})
	require.NoError(t, err)
	require.Equal(t, "assistant", answer.Role)
	require.Equal(t, gen.answer, answer.Content)
	require.NotEmpty(t, answer.ID)
	require.NotZero(t, answer.Timestamp)

	require.Len(t, answer.Sources, 2)
	require.Equal(t, "f1", answer.Sources[0].FileID)
	require.Equal(t, "biology.pdf", answer.Sources[0].FileName)
	require.InDelta(t, 0.75, answer.Sources[0].RelevanceScore, 1e-9)
	require.InDelta(t, 0.5, answer.Sources[1].RelevanceScore, 1e-9)
	require.Equal(t, longDoc[:200]+"...", answer.Sources[0].Excerpt)
	require.Equal(t, "short chunk about mitochondria", answer.Sources[1].Excerpt)

	require.Contains(t, gen.gotContext, "Source: biology.pdf (pdf)")
	require.Contains(t, gen.gotContext, "Content: ")
	require.Equal(t, "mitochondria powerhouse cell", gen.gotQuery)
}

func TestQueryEmptyPartitionUsesSentinel(t *testing.T) {
	gen := &stubGenerator{answer: "I could not find that in your materials."}
	svc := NewQueryService(newStubCourses("c1"), &stubQueryVectors{}, &stubEmbedder{}, gen, QueryConfig{})

	answer, err := svc.Query(context.Background(), &model.QueryRequest{CourseID: "c1", Query: "anything at all"})
	require.NoError(t, err)
	require.Equal(t, noContextSentinel, gen.gotContext)
	require.Empty(t, answer.Sources)
}

func TestQueryCrossReferenceExpansion(t *testing.T) {
	vectors := &stubQueryVectors{
		initial: []vecstore.Match{
			matchFor("ch1", "f1", "notes.md", "md", "nothing related here", 0.9),
		},
		extra: []vecstore.Match{
			matchFor("ch9", "f2", "extra.md", "md", "background on chromodynamics", 0.4),
		},
	}
	gen := &stubGenerator{answer: "answer"}
	svc := NewQueryService(newStubCourses("c1"), vectors, &stubEmbedder{}, gen, QueryConfig{CrossRefLimit: 3})

	answer, err := svc.Query(context.Background(), &model.QueryRequest{
		CourseID:              "c1",
		Query:                 "Explain quantum chromodynamics briefly",
		RequireCrossReference: true,
	})
	require.NoError(t, err)

	// One initial retrieval plus one per key term (>4 chars).
	require.Equal(t, 5, vectors.calls)
	for _, k := range vectors.ks[1:] {
		require.Equal(t, 3, k)
	}
	require.Contains(t, gen.gotContext, "Additional Context:")
	require.Contains(t, gen.gotContext, "Source: extra.md (md)")

	// Expansion hits provide context only, never citations.
	require.Len(t, answer.Sources, 1)
	require.Equal(t, "f1", answer.Sources[0].FileID)
}

func TestQueryNoExpansionWhenSufficient(t *testing.T) {
	vectors := &stubQueryVectors{
		initial: []vecstore.Match{
			matchFor("ch1", "f1", "notes.md", "md", "explain quantum chromodynamics briefly and fully", 0.2),
		},
		extra: []vecstore.Match{
			matchFor("ch9", "f2", "extra.md", "md", "unused", 0.4),
		},
	}
	gen := &stubGenerator{answer: "answer"}
	svc := NewQueryService(newStubCourses("c1"), vectors, &stubEmbedder{}, gen, QueryConfig{})

	_, err := svc.Query(context.Background(), &model.QueryRequest{
		CourseID:              "c1",
		Query:                 "Explain quantum chromodynamics briefly",
		RequireCrossReference: true,
	})
	require.NoError(t, err)
	require.Equal(t, 1, vectors.calls)
	require.NotContains(t, gen.gotContext, "Additional Context:")
}

func TestQueryNoExpansionWithoutFlag(t *testing.T) {
	vectors := &stubQueryVectors{
		initial: []vecstore.Match{
			matchFor("ch1", "f1", "notes.md", "md", "nothing related here", 0.9),
		},
	}
	gen := &stubGenerator{answer: "answer"}
	svc := NewQueryService(newStubCourses("c1"), vectors, &stubEmbedder{}, gen, QueryConfig{})

	_, err := svc.Query(context.Background(), &model.QueryRequest{
		CourseID: "c1",
		Query:    "Explain quantum chromodynamics briefly",
	})
	require.NoError(t, err)
	require.Equal(t, 1, vectors.calls)
	require.NotContains(t, gen.gotContext, "Additional Context:")
}

func TestQueryErrorClassification(t *testing.T) {
	courses := newStubCourses("c1")
	req := &model.QueryRequest{CourseID: "c1", Query: "anything goes"}

	embedder := &stubEmbedder{err: fmt.Errorf("boom")}
	svc := NewQueryService(courses, &stubQueryVectors{}, embedder, &stubGenerator{answer: "a"}, QueryConfig{})
	_, err := svc.Query(context.Background(), req)
	require.ErrorIs(t, err, appErr.ErrEmbedding)

	embedder = &stubEmbedder{err: context.DeadlineExceeded}
	svc = NewQueryService(courses, &stubQueryVectors{}, embedder, &stubGenerator{answer: "a"}, QueryConfig{})
	_, err = svc.Query(context.Background(), req)
	require.ErrorIs(t, err, appErr.ErrTimeout)

	gen := &stubGenerator{err: errors.New("model exploded")}
	svc = NewQueryService(courses, &stubQueryVectors{}, &stubEmbedder{}, gen, QueryConfig{})
	_, err = svc.Query(context.Background(), req)
	require.ErrorIs(t, err, appErr.ErrGeneration)

	vectors := &stubQueryVectors{err: fmt.Errorf("%w: down", appErr.ErrIndexUnavailable)}
	svc = NewQueryService(courses, vectors, &stubEmbedder{}, &stubGenerator{answer: "a"}, QueryConfig{})
	_, err = svc.Query(context.Background(), req)
	require.ErrorIs(t, err, appErr.ErrIndexUnavailable)
}

func TestSearchReturnsRankedMatches(t *testing.T) {
	vectors := &stubQueryVectors{
		initial: []vecstore.Match{
			matchFor("ch1", "f1", "notes.md", "md", "first", 0.1),
			matchFor("ch2", "f1", "notes.md", "md", "second", 0.2),
		},
	}
	svc := NewQueryService(newStubCourses("c1"), vectors, &stubEmbedder{}, &stubGenerator{answer: "a"}, QueryConfig{})

	matches, err := svc.Search(context.Background(), "c1", "notes", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, "ch1", matches[0].ChunkID)

	_, err = svc.Search(context.Background(), "c1", "", 2)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestSufficiencyHeuristic(t *testing.T) {
	svc := NewQueryService(newStubCourses(), &stubQueryVectors{}, &stubEmbedder{}, &stubGenerator{}, QueryConfig{})

	tests := []struct {
		name    string
		query   string
		context string
		want    bool
	}{
		{"all tokens covered", "mitochondria powerhouse", "the MITOCHONDRIA is the Powerhouse", true},
		{"short tokens ignored", "is it an ok day", "completely unrelated text", true},
		{"everything missing", "quantum chromodynamics lattice", "cooking recipes only", false},
		{"under threshold", "alpha beta gamma delta", "alpha beta gamma something", true},
		{"over threshold", "alpha beta gamma delta", "alpha beta something else", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, svc.sufficient(tt.query, tt.context))
		})
	}
}

func TestKeyTerms(t *testing.T) {
	svc := NewQueryService(newStubCourses(), &stubQueryVectors{}, &stubEmbedder{}, &stubGenerator{}, QueryConfig{})
	terms := svc.keyTerms("What are the limits of quantum chromodynamics")
	require.Equal(t, []string{"limits", "quantum", "chromodynamics"}, terms)
	require.Empty(t, svc.keyTerms("it is so far ok"))
}

func TestFormatContext(t *testing.T) {
	require.Equal(t, noContextSentinel, formatContext(nil))

	got := formatContext([]vecstore.Match{
		matchFor("ch1", "f1", "a.pdf", "pdf", "alpha", 0.1),
		matchFor("ch2", "f2", "b.md", "md", "beta", 0.2),
	})
	require.Equal(t, "Source: a.pdf (pdf)\nContent: alpha\n---\n\nSource: b.md (md)\nContent: beta\n---", got)
}

func TestQueryExcerptTruncatesOnRuneBoundary(t *testing.T) {
	// 100 three-byte runes: a byte-200 cut would land mid-rune and
	// hand the JSON encoder invalid UTF-8.
	doc := strings.Repeat("日", 100)
	vectors := &stubQueryVectors{
		initial: []vecstore.Match{matchFor("ch1", "f1", "kanji.txt", "txt", doc, 0.1)},
	}
	svc := NewQueryService(newStubCourses("c1"), vectors, &stubEmbedder{}, &stubGenerator{answer: "ok"}, QueryConfig{})

	answer, err := svc.Query(context.Background(), &model.QueryRequest{CourseID: "c1", Query: "kanji"})
	require.NoError(t, err)
	require.Len(t, answer.Sources, 1)
	excerpt := answer.Sources[0].Excerpt
	require.True(t, utf8.ValidString(excerpt))
	require.Equal(t, strings.Repeat("日", 66)+"...", excerpt)
}
