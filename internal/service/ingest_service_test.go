package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studyware/coursepilot/internal/chunk"
	"github.com/studyware/coursepilot/internal/extract"
	"github.com/studyware/coursepilot/internal/filestore"
	"github.com/studyware/coursepilot/internal/model"
	appErr "github.com/studyware/coursepilot/internal/pkg/errors"
	"github.com/studyware/coursepilot/internal/vecstore"
	"github.com/studyware/coursepilot/internal/youtube"
)

type stubFiles struct {
	files map[string]*model.CourseFile
}

func newStubFiles() *stubFiles {
	return &stubFiles{files: make(map[string]*model.CourseFile)}
}

func (s *stubFiles) Create(ctx context.Context, file *model.CourseFile) error {
	copied := *file
	s.files[file.ID] = &copied
	return nil
}

func (s *stubFiles) GetByID(ctx context.Context, courseID, fileID string) (*model.CourseFile, error) {
	file, ok := s.files[fileID]
	if !ok || file.CourseID != courseID {
		return nil, appErr.ErrNotFound
	}
	copied := *file
	return &copied, nil
}

func (s *stubFiles) ListByCourse(ctx context.Context, courseID string) ([]model.CourseFile, error) {
	var out []model.CourseFile
	for _, file := range s.files {
		if file.CourseID == courseID {
			out = append(out, *file)
		}
	}
	return out, nil
}

func (s *stubFiles) ListUnprocessed(ctx context.Context, limit uint) ([]model.CourseFile, error) {
	var out []model.CourseFile
	for _, file := range s.files {
		if !file.Processed && uint(len(out)) < limit {
			out = append(out, *file)
		}
	}
	return out, nil
}

func (s *stubFiles) MarkProcessed(ctx context.Context, fileID string, processed bool) error {
	file, ok := s.files[fileID]
	if !ok {
		return appErr.ErrNotFound
	}
	file.Processed = processed
	return nil
}

func (s *stubFiles) Delete(ctx context.Context, courseID, fileID string) error {
	file, ok := s.files[fileID]
	if !ok || file.CourseID != courseID {
		return appErr.ErrNotFound
	}
	delete(s.files, fileID)
	return nil
}

func (s *stubFiles) DeleteByCourse(ctx context.Context, courseID string) error {
	for id, file := range s.files {
		if file.CourseID == courseID {
			delete(s.files, id)
		}
	}
	return nil
}

type stubChunks struct {
	chunks []model.Chunk
}

func (s *stubChunks) BulkCreate(ctx context.Context, chunks []model.Chunk) error {
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *stubChunks) ListByFile(ctx context.Context, courseID, fileID string) ([]model.Chunk, error) {
	var out []model.Chunk
	for _, c := range s.chunks {
		if c.CourseID == courseID && c.FileID == fileID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *stubChunks) DeleteByFile(ctx context.Context, courseID, fileID string) error {
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if !(c.CourseID == courseID && c.FileID == fileID) {
			kept = append(kept, c)
		}
	}
	s.chunks = kept
	return nil
}

func (s *stubChunks) DeleteByCourse(ctx context.Context, courseID string) error {
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if c.CourseID != courseID {
			kept = append(kept, c)
		}
	}
	s.chunks = kept
	return nil
}

func (s *stubChunks) CountByFile(ctx context.Context, courseID, fileID string) (int, error) {
	chunks, _ := s.ListByFile(ctx, courseID, fileID)
	return len(chunks), nil
}

type memFilestore struct {
	objects map[string][]byte
}

func newMemFilestore() *memFilestore {
	return &memFilestore{objects: make(map[string][]byte)}
}

func (s *memFilestore) Save(ctx context.Context, key string, r filestore.ReadSeekCloser, size int64) error {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.objects[key] = data
	return nil
}

func (s *memFilestore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memFilestore) Delete(ctx context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) Extract(ctx context.Context, path string, declaredType string) (extract.Result, error) {
	if s.err != nil {
		return extract.Result{}, s.err
	}
	return extract.Result{Text: s.text}, nil
}

type stubVideo struct {
	title      string
	transcript string
	err        error
}

func (s *stubVideo) FetchMetadata(ctx context.Context, videoID string) youtube.Metadata {
	return youtube.Metadata{VideoID: videoID, Title: s.title}
}

func (s *stubVideo) FetchTranscript(ctx context.Context, videoID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.transcript, nil
}

type ingestFixture struct {
	svc      *IngestService
	courses  *stubCourses
	files    *stubFiles
	chunks   *stubChunks
	vectors  vecstore.Store
	store    *memFilestore
	embedder *stubEmbedder
	video    *stubVideo
}

func newIngestFixture(t *testing.T, extractor DocumentExtractor) *ingestFixture {
	t.Helper()
	splitter, err := chunk.NewSplitter(1000, 200)
	require.NoError(t, err)
	f := &ingestFixture{
		courses:  newStubCourses("c1"),
		files:    newStubFiles(),
		chunks:   &stubChunks{},
		vectors:  vecstore.NewMemory(),
		store:    newMemFilestore(),
		embedder: &stubEmbedder{},
		video:    &stubVideo{title: "Intro to Biology", transcript: strings.Repeat("the cell divides. ", 40)},
	}
	f.svc = NewIngestService(
		splitter, f.embedder, extractor, f.video,
		f.courses, f.files, f.chunks, f.vectors, f.store,
	)
	return f
}

func writeTempUpload(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lecture.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestIngestFile(t *testing.T) {
	text := strings.Repeat("Photosynthesis converts light into chemical energy. ", 60)
	f := newIngestFixture(t, &stubExtractor{text: text})
	path := writeTempUpload(t, text)

	file, err := f.svc.IngestFile(context.Background(), "c1", "lecture.txt", int64(len(text)), path)
	require.NoError(t, err)
	require.True(t, file.Processed)
	require.Equal(t, "txt", file.Type)
	require.NotEmpty(t, file.StorageKey)
	require.Contains(t, f.store.objects, file.StorageKey)

	chunks, err := f.chunks.ListByFile(context.Background(), "c1", file.ID)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for i, c := range chunks {
		require.Equal(t, i, c.Metadata.ChunkIndex)
		require.Equal(t, len(chunks), c.Metadata.TotalChunks)
		require.Equal(t, "lecture.txt", c.Metadata.FileName)
	}

	matches, err := f.vectors.Query(context.Background(), "c1", []float32{1, 0, 0}, len(chunks)+1)
	require.NoError(t, err)
	require.Len(t, matches, len(chunks))

	course, err := f.courses.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 1, course.FileCount)
	require.Equal(t, len(chunks), course.EmbeddingCount)
}

func TestIngestFileUnknownCourse(t *testing.T) {
	f := newIngestFixture(t, &stubExtractor{text: "whatever"})
	path := writeTempUpload(t, "whatever")
	_, err := f.svc.IngestFile(context.Background(), "nope", "lecture.txt", 8, path)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestIngestFileEmbeddingFailureLeavesNoVectorlessEntries(t *testing.T) {
	text := strings.Repeat("Photosynthesis converts light into chemical energy. ", 60)
	f := newIngestFixture(t, &stubExtractor{text: text})
	f.embedder.err = fmt.Errorf("embedding backend down")
	path := writeTempUpload(t, text)

	file, err := f.svc.IngestFile(context.Background(), "c1", "lecture.txt", int64(len(text)), path)
	require.ErrorIs(t, err, appErr.ErrEmbedding)
	require.NotNil(t, file)

	// The upload is kept for the reprocess job, but nothing was indexed.
	stored, getErr := f.files.GetByID(context.Background(), "c1", file.ID)
	require.NoError(t, getErr)
	require.False(t, stored.Processed)
	require.Empty(t, f.chunks.chunks)
	matches, err := f.vectors.Query(context.Background(), "c1", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Empty(t, matches)

	course, err := f.courses.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	require.Zero(t, course.FileCount)
	require.Zero(t, course.EmbeddingCount)
}

func TestIngestYouTube(t *testing.T) {
	f := newIngestFixture(t, &stubExtractor{})

	file, err := f.svc.IngestYouTube(context.Background(), "c1", "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	require.NoError(t, err)
	require.Equal(t, "youtube", file.Type)
	require.Equal(t, "Intro to Biology", file.Name)
	require.True(t, file.Processed)
	require.Empty(t, file.StorageKey)

	chunks, err := f.chunks.ListByFile(context.Background(), "c1", file.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	require.Equal(t, "youtube", chunks[0].Metadata.FileType)
}

func TestIngestYouTubeInvalidURL(t *testing.T) {
	f := newIngestFixture(t, &stubExtractor{})
	_, err := f.svc.IngestYouTube(context.Background(), "c1", "https://example.com/not-a-video")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestDeleteFileCascades(t *testing.T) {
	text := strings.Repeat("Photosynthesis converts light into chemical energy. ", 60)
	f := newIngestFixture(t, &stubExtractor{text: text})
	path := writeTempUpload(t, text)

	file, err := f.svc.IngestFile(context.Background(), "c1", "lecture.txt", int64(len(text)), path)
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteFile(context.Background(), "c1", file.ID))

	_, err = f.files.GetByID(context.Background(), "c1", file.ID)
	require.ErrorIs(t, err, appErr.ErrNotFound)
	require.Empty(t, f.chunks.chunks)
	require.NotContains(t, f.store.objects, file.StorageKey)
	matches, err := f.vectors.Query(context.Background(), "c1", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Empty(t, matches)

	course, err := f.courses.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	require.Zero(t, course.FileCount)
	require.Zero(t, course.EmbeddingCount)
}

func TestReprocessRecoversFailedIngestion(t *testing.T) {
	text := strings.Repeat("Photosynthesis converts light into chemical energy. ", 60)
	f := newIngestFixture(t, &stubExtractor{text: text})
	f.embedder.err = fmt.Errorf("embedding backend down")
	path := writeTempUpload(t, text)

	file, err := f.svc.IngestFile(context.Background(), "c1", "lecture.txt", int64(len(text)), path)
	require.ErrorIs(t, err, appErr.ErrEmbedding)

	f.embedder.err = nil
	stored, err := f.files.GetByID(context.Background(), "c1", file.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Reprocess(context.Background(), stored))

	stored, err = f.files.GetByID(context.Background(), "c1", file.ID)
	require.NoError(t, err)
	require.True(t, stored.Processed)
	chunks, err := f.chunks.ListByFile(context.Background(), "c1", file.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	course, err := f.courses.GetByID(context.Background(), "c1")
	require.NoError(t, err)
	require.Equal(t, 1, course.FileCount)
	require.Equal(t, len(chunks), course.EmbeddingCount)
}

func TestFileTypeOf(t *testing.T) {
	require.Equal(t, "pdf", fileTypeOf("Syllabus.PDF"))
	require.Equal(t, "txt", fileTypeOf("notes.txt"))
	require.Equal(t, "", fileTypeOf("README"))
}

// End to end over one shared in-memory index: a file ingested through
// the full pipeline is retrievable by a chat query, with the answer
// attributed back to that file.
func TestIngestThenQuery(t *testing.T) {
	text := strings.Repeat("The mitochondria is the powerhouse of the cell. ", 30)
	f := newIngestFixture(t, &stubExtractor{text: text})
	path := writeTempUpload(t, text)

	file, err := f.svc.IngestFile(context.Background(), "c1", "biology.txt", int64(len(text)), path)
	require.NoError(t, err)

	gen := &stubGenerator{answer: "It produces ATP."}
	querySvc := NewQueryService(f.courses, f.vectors, f.embedder, gen, QueryConfig{})

	answer, err := querySvc.Query(context.Background(), &model.QueryRequest{
		CourseID: "c1",
		Query:    "What is the mitochondria?",
	})
	require.NoError(t, err)
	require.Equal(t, gen.answer, answer.Content)
	require.NotEmpty(t, answer.Sources)
	for _, src := range answer.Sources {
		require.Equal(t, file.ID, src.FileID)
		require.Equal(t, "biology.txt", src.FileName)
		require.Greater(t, src.RelevanceScore, 0.0)
		require.Contains(t, src.Excerpt, "mitochondria")
	}
	require.Contains(t, gen.gotContext, "Source: biology.txt (txt)")
}
