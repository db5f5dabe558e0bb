package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/studyware/coursepilot/internal/chunk"
	"github.com/studyware/coursepilot/internal/extract"
	"github.com/studyware/coursepilot/internal/filestore"
	"github.com/studyware/coursepilot/internal/model"
	appErr "github.com/studyware/coursepilot/internal/pkg/errors"
	"github.com/studyware/coursepilot/internal/pkg/timeutil"
	"github.com/studyware/coursepilot/internal/vecstore"
	"github.com/studyware/coursepilot/internal/youtube"
)

// Embedder is the slice of *ai.Manager the ingestion and query paths
// depend on.
type Embedder interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error)
}

// DocumentExtractor is satisfied by *extract.Extractor.
type DocumentExtractor interface {
	Extract(ctx context.Context, path string, declaredType string) (extract.Result, error)
}

// VideoClient is satisfied by *youtube.Client.
type VideoClient interface {
	FetchMetadata(ctx context.Context, videoID string) youtube.Metadata
	FetchTranscript(ctx context.Context, videoID string) (string, error)
}

type IngestService struct {
	splitter  *chunk.Splitter
	embedder  Embedder
	extractor DocumentExtractor
	video     VideoClient
	courses   CourseRepository
	files     FileRepository
	chunks    ChunkRepository
	vectors   vecstore.Store
	store     filestore.Store
}

func NewIngestService(
	splitter *chunk.Splitter,
	embedder Embedder,
	extractor DocumentExtractor,
	video VideoClient,
	courses CourseRepository,
	files FileRepository,
	chunks ChunkRepository,
	vectors vecstore.Store,
	store filestore.Store,
) *IngestService {
	return &IngestService{
		splitter:  splitter,
		embedder:  embedder,
		extractor: extractor,
		video:     video,
		courses:   courses,
		files:     files,
		chunks:    chunks,
		vectors:   vectors,
		store:     store,
	}
}

// IngestFile extracts, chunks and embeds an uploaded file whose bytes
// sit at localPath. The raw upload is copied into the file store so a
// failed ingestion can be retried later without a re-upload; on any
// failure past that point the file row stays with processed=false and
// the reprocess job picks it up.
func (s *IngestService) IngestFile(ctx context.Context, courseID, fileName string, size int64, localPath string) (*model.CourseFile, error) {
	if strings.TrimSpace(fileName) == "" {
		return nil, appErr.ErrInvalid
	}
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return nil, err
	}
	fileID := newID()
	typ := fileTypeOf(fileName)
	storageKey := fileID + "." + typ
	if typ == "" {
		storageKey = fileID
	}

	src, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()
	if err := s.store.Save(ctx, storageKey, src, size); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	file := &model.CourseFile{
		ID:         fileID,
		CourseID:   courseID,
		Name:       fileName,
		Type:       typ,
		Size:       size,
		StorageKey: storageKey,
		UploadedAt: timeutil.NowMilli(),
	}
	if err := s.files.Create(ctx, file); err != nil {
		return nil, err
	}

	result, err := s.extractor.Extract(ctx, localPath, typ)
	if err != nil {
		return file, err
	}
	if err := s.ingestText(ctx, file, result.Text); err != nil {
		return file, err
	}
	return file, nil
}

// IngestYouTube pulls the transcript for a video URL and ingests it as
// a SourceDocument of type "youtube". Nothing is written to the file
// store, the transcript text lives entirely in the chunk rows.
func (s *IngestService) IngestYouTube(ctx context.Context, courseID, url string) (*model.CourseFile, error) {
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return nil, err
	}
	videoID, err := youtube.ExtractVideoID(url)
	if err != nil {
		return nil, err
	}
	meta := s.video.FetchMetadata(ctx, videoID)
	transcript, err := s.video.FetchTranscript(ctx, videoID)
	if err != nil {
		return nil, err
	}
	file := &model.CourseFile{
		ID:         newID(),
		CourseID:   courseID,
		Name:       meta.Title,
		Type:       "youtube",
		Size:       int64(len(transcript)),
		UploadedAt: timeutil.NowMilli(),
	}
	if err := s.files.Create(ctx, file); err != nil {
		return nil, err
	}
	if err := s.ingestText(ctx, file, transcript); err != nil {
		return file, err
	}
	return file, nil
}

// Reprocess retries ingestion for a file whose first pass never
// completed. Stale chunks and vectors from a partial earlier attempt
// are dropped before re-ingesting.
func (s *IngestService) Reprocess(ctx context.Context, file *model.CourseFile) error {
	if file.StorageKey == "" {
		// Nothing stored to re-extract from (YouTube ingests).
		return appErr.ErrExtraction
	}
	rc, err := s.store.Open(ctx, file.StorageKey)
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}
	defer rc.Close()
	tmp, err := os.CreateTemp("", "reprocess-*."+file.Type)
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.ReadFrom(rc); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := s.purgeFileChunks(ctx, file, false); err != nil {
		return err
	}
	result, err := s.extractor.Extract(ctx, tmp.Name(), file.Type)
	if err != nil {
		return err
	}
	return s.ingestText(ctx, file, result.Text)
}

// DeleteFile removes one SourceDocument with its chunks, vectors and
// stored bytes, and rolls the course counters back.
func (s *IngestService) DeleteFile(ctx context.Context, courseID, fileID string) error {
	file, err := s.files.GetByID(ctx, courseID, fileID)
	if err != nil {
		return err
	}
	if err := s.purgeFileChunks(ctx, file, true); err != nil {
		return err
	}
	if file.StorageKey != "" {
		if err := s.store.Delete(ctx, file.StorageKey); err != nil {
			logutil.GetLogger(ctx).Warn("delete stored file failed",
				zap.String("key", file.StorageKey), zap.Error(err))
		}
	}
	return s.files.Delete(ctx, courseID, fileID)
}

func (s *IngestService) ListFiles(ctx context.Context, courseID string) ([]model.CourseFile, error) {
	if _, err := s.courses.GetByID(ctx, courseID); err != nil {
		return nil, err
	}
	return s.files.ListByCourse(ctx, courseID)
}

// ingestText is the shared tail of every ingestion path: split, embed,
// index, persist, bump counters. An embedding failure aborts before
// anything is written so the index never holds a vectorless entry.
func (s *IngestService) ingestText(ctx context.Context, file *model.CourseFile, text string) error {
	pieces, err := s.splitter.Split(ctx, text)
	if err != nil {
		return err
	}
	if len(pieces) == 0 {
		return appErr.ErrExtraction
	}
	texts := make([]string, 0, len(pieces))
	for _, piece := range pieces {
		texts = append(texts, piece.Content)
	}
	embeddings, err := s.embedder.EmbedBatch(ctx, texts, "RETRIEVAL_DOCUMENT")
	if err != nil {
		return fmt.Errorf("%w: %v", appErr.ErrEmbedding, err)
	}

	now := timeutil.NowMilli()
	chunks := make([]model.Chunk, 0, len(pieces))
	entries := make([]vecstore.Entry, 0, len(pieces))
	for i, piece := range pieces {
		meta := model.ChunkMetadata{
			FileName:    file.Name,
			FileType:    file.Type,
			ChunkIndex:  piece.Index,
			TotalChunks: len(pieces),
			StartChar:   piece.StartChar,
			EndChar:     piece.EndChar,
		}
		chunkID := newID()
		chunks = append(chunks, model.Chunk{
			ID:       chunkID,
			CourseID: file.CourseID,
			FileID:   file.ID,
			Content:  piece.Content,
			Metadata: meta,
			Ctime:    now,
		})
		entries = append(entries, vecstore.Entry{
			ChunkID:   chunkID,
			FileID:    file.ID,
			Document:  piece.Content,
			Embedding: embeddings[i],
			Metadata:  meta,
		})
	}
	if err := s.vectors.Upsert(ctx, file.CourseID, entries); err != nil {
		return err
	}
	if err := s.chunks.BulkCreate(ctx, chunks); err != nil {
		return err
	}
	if err := s.files.MarkProcessed(ctx, file.ID, true); err != nil {
		return err
	}
	file.Processed = true
	if err := s.courses.AdjustCounters(ctx, file.CourseID, 1, len(chunks), now); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("file ingested",
		zap.String("course_id", file.CourseID),
		zap.String("file_id", file.ID),
		zap.Int("chunks", len(chunks)))
	return nil
}

// purgeFileChunks drops the chunks and vectors of one file. When
// adjustCounters is set the course counters are rolled back too; the
// reprocess path skips that since its counters were never bumped.
func (s *IngestService) purgeFileChunks(ctx context.Context, file *model.CourseFile, adjustCounters bool) error {
	count, err := s.chunks.CountByFile(ctx, file.CourseID, file.ID)
	if err != nil {
		return err
	}
	if err := s.vectors.DeleteFile(ctx, file.CourseID, file.ID); err != nil {
		return err
	}
	if err := s.chunks.DeleteByFile(ctx, file.CourseID, file.ID); err != nil {
		return err
	}
	if adjustCounters && file.Processed {
		if err := s.courses.AdjustCounters(ctx, file.CourseID, -1, -count, timeutil.NowMilli()); err != nil {
			return err
		}
	}
	return nil
}

func fileTypeOf(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	return ext
}
