package render

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// jobScope owns every temporary file a single render creates. Release is
// safe to call more than once and runs on every exit path.
type jobScope struct {
	jobID string
	dir   string

	mu       sync.Mutex
	files    []string
	released bool
}

func newJobScope(tempDir, jobID string) (*jobScope, error) {
	dir := filepath.Join(tempDir, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create job temp dir: %w", err)
	}
	return &jobScope{jobID: jobID, dir: dir}, nil
}

// path returns a file name inside the job directory.
func (s *jobScope) path(name string) string {
	return filepath.Join(s.dir, name)
}

// track registers a file living outside the job directory.
func (s *jobScope) track(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files = append(s.files, path)
}

func (s *jobScope) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.released = true
	for _, f := range s.files {
		os.Remove(f)
	}
	os.RemoveAll(s.dir)
}
