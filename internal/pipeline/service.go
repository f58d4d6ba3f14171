package pipeline

import (
	"context"
	"fmt"
	"time"

	"aiprofile/internal/domain"
	"aiprofile/internal/infra"
	"aiprofile/internal/storage"
	"aiprofile/pkg/imgcodec"
)

// Notifier is the out-of-band alerting hook. Implementations must be
// best-effort: failures are logged by the caller, never propagated.
type Notifier interface {
	JobCompleted(ctx context.Context, jobID string)
	JobFailed(ctx context.Context, jobID string, detail string)
}

// Service runs the pipeline and owns artifact delivery: uploading outputs
// under {job_id}/{n}.png and persisting exactly one of a success or failure
// record per job. Both the queue consumer and the synchronous HTTP handler
// drive jobs through it.
type Service struct {
	runner    *Runner
	blobs     storage.BlobStore
	responses domain.ResponseRepository
	failures  domain.ErrorRepository
	notifier  Notifier
	logger    infra.Logger
}

// NewService wires delivery around a pipeline runner.
func NewService(runner *Runner, blobs storage.BlobStore, responses domain.ResponseRepository, failures domain.ErrorRepository, notifier Notifier, logger infra.Logger) *Service {
	return &Service{
		runner:    runner,
		blobs:     blobs,
		responses: responses,
		failures:  failures,
		notifier:  notifier,
		logger:    logger,
	}
}

// Execute runs the job, uploads every deliverable, and persists the success
// record. It returns the stored output paths in order. On any error nothing
// is acknowledged as done: the caller records the failure via RecordFailure.
func (s *Service) Execute(ctx context.Context, req *domain.JobRequest) ([]string, error) {
	outputs, err := s.runner.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(outputs))
	for i, img := range outputs {
		data, encErr := imgcodec.EncodePNG(img)
		if encErr != nil {
			return nil, domain.Fail(domain.KindUploadFail, encErr)
		}
		stored, putErr := s.blobs.Put(ctx, domain.OutputPath(req.ID, i+1), data)
		if putErr != nil {
			return nil, domain.Fail(domain.KindUploadFail, putErr)
		}
		paths = append(paths, stored)
	}

	rec := &domain.ResponseRecord{
		ID:          req.ID,
		Email:       req.Email,
		ImagePaths:  paths,
		RequestedAt: req.RequestedAt,
		CreatedAt:   time.Now().UTC(),
		Title:       req.Title,
		UserID:      req.UserID,
	}
	if err := s.responses.Create(ctx, rec); err != nil {
		return nil, domain.Fail(domain.KindUnknown, fmt.Errorf("persist response record: %w", err))
	}

	s.notifier.JobCompleted(ctx, req.ID)
	return paths, nil
}

// RecordFailure persists the failure record for jobID (UnknownJobID when the
// id could not be recovered) and fires the failure alert. It never fails:
// persistence errors are logged, since the message disposition must not
// depend on the error store being up.
func (s *Service) RecordFailure(ctx context.Context, jobID string, jobErr error) domain.Kind {
	if jobID == "" {
		jobID = domain.UnknownJobID
	}
	kind := domain.ClassifyFailure(jobErr)
	detail := fmt.Sprintf("%s: %v", kind, jobErr)

	rec := &domain.ErrorRecord{ID: jobID, Error: detail, CreatedAt: time.Now().UTC()}
	if err := s.failures.Create(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("job_id", jobID).Msg("pipeline: persist error record failed")
	}
	s.notifier.JobFailed(ctx, jobID, detail)
	return kind
}
