package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/bobarin/reelforge/internal/models"
)

// Memory keeps jobs in process. Records are lost on restart.
type Memory struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

var _ JobStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{jobs: make(map[string]*models.Job)}
}

func (m *Memory) Create(ctx context.Context, job *models.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	cp := copyJob(job)
	m.jobs[job.ID] = cp
	return nil
}

func (m *Memory) Get(ctx context.Context, id string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyJob(job), nil
}

func (m *Memory) Update(ctx context.Context, id string, fn func(*models.Job) error) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := copyJob(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	touch(next)
	m.jobs[id] = next
	return copyJob(next), nil
}

func (m *Memory) Close() error { return nil }

// copyJob keeps callers from mutating stored records through shared pointers.
func copyJob(j *models.Job) *models.Job {
	cp := *j
	if j.OutputURL != nil {
		v := *j.OutputURL
		cp.OutputURL = &v
	}
	if j.ErrorMessage != nil {
		v := *j.ErrorMessage
		cp.ErrorMessage = &v
	}
	if j.StartedAt != nil {
		v := *j.StartedAt
		cp.StartedAt = &v
	}
	if j.FinishedAt != nil {
		v := *j.FinishedAt
		cp.FinishedAt = &v
	}
	cp.Storyboard = j.Storyboard.Clone()
	return &cp
}
