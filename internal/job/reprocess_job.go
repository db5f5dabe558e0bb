package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/studyware/coursepilot/internal/repo"
	"github.com/studyware/coursepilot/internal/service"
)

// ReprocessJob retries ingestion for files whose first pass failed
// partway, typically after an embedding outage.
type ReprocessJob struct {
	ingest *service.IngestService
	files  *repo.FileRepo
	batch  uint
}

func NewReprocessJob(ingest *service.IngestService, files *repo.FileRepo, batch uint) *ReprocessJob {
	if batch == 0 {
		batch = 10
	}
	return &ReprocessJob{ingest: ingest, files: files, batch: batch}
}

func (j *ReprocessJob) Name() string {
	return "reprocess_files"
}

func (j *ReprocessJob) Run(ctx context.Context) error {
	pending, err := j.files.ListUnprocessed(ctx, j.batch)
	if err != nil {
		return err
	}
	for i := range pending {
		file := &pending[i]
		if file.StorageKey == "" {
			// Nothing stored to retry from, skip until deleted.
			continue
		}
		if err := j.ingest.Reprocess(ctx, file); err != nil {
			logutil.GetLogger(ctx).Warn("reprocess failed",
				zap.String("file_id", file.ID),
				zap.String("course_id", file.CourseID),
				zap.Error(err))
			continue
		}
	}
	return nil
}
