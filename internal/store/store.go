// Package store persists render job records. Backends share one contract so
// the API and the status sink never care where jobs live.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/bobarin/reelforge/internal/models"
)

var ErrNotFound = errors.New("job not found")

// JobStore is implemented by every backend.
type JobStore interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	// Update loads the job, applies fn and saves the result atomically with
	// respect to other Update calls. Returning an error from fn aborts the
	// write.
	Update(ctx context.Context, id string, fn func(*models.Job) error) (*models.Job, error)
	Close() error
}

func touch(job *models.Job) {
	job.UpdatedAt = time.Now().UTC()
}
