package store

import (
	"context"
	"time"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/bobarin/reelforge/internal/render"
)

// Sink records render progress on job records.
type Sink struct {
	jobs JobStore
}

var _ render.StatusSink = (*Sink)(nil)

func NewSink(jobs JobStore) *Sink {
	return &Sink{jobs: jobs}
}

// Progress never moves a job backwards and ignores terminal jobs.
func (s *Sink) Progress(ctx context.Context, jobID string, percent int, stage render.Stage) error {
	_, err := s.jobs.Update(ctx, jobID, func(job *models.Job) error {
		if job.Status.Terminal() {
			return nil
		}
		if job.Status != models.JobStatusProcessing {
			job.Status = models.JobStatusProcessing
			now := time.Now().UTC()
			job.StartedAt = &now
		}
		if percent >= job.Progress {
			job.Progress = percent
			job.Stage = string(stage)
		}
		return nil
	})
	return err
}

func (s *Sink) Complete(ctx context.Context, jobID, location string) error {
	_, err := s.jobs.Update(ctx, jobID, func(job *models.Job) error {
		if job.Status.Terminal() {
			return nil
		}
		now := time.Now().UTC()
		job.Status = models.JobStatusCompleted
		job.Progress = 100
		job.Stage = string(render.StageDone)
		job.OutputURL = &location
		job.FinishedAt = &now
		return nil
	})
	return err
}

func (s *Sink) Fail(ctx context.Context, jobID, message string) error {
	_, err := s.jobs.Update(ctx, jobID, func(job *models.Job) error {
		if job.Status.Terminal() {
			return nil
		}
		now := time.Now().UTC()
		job.Status = models.JobStatusFailed
		job.Stage = string(render.StageFailed)
		job.ErrorMessage = &message
		job.FinishedAt = &now
		return nil
	})
	return err
}
