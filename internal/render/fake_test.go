package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

// fakeRunner records ffmpeg invocations and writes a stub output file.
type fakeRunner struct {
	mu       sync.Mutex
	calls    [][]string
	failWhen func(args []string) bool
	panicOn  string
}

func (f *fakeRunner) Run(ctx context.Context, args []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string(nil), args...))
	f.mu.Unlock()

	if f.panicOn != "" && strings.Contains(strings.Join(args, " "), f.panicOn) {
		panic("boom")
	}
	if f.failWhen != nil && f.failWhen(args) {
		return errors.New("exit status 1")
	}
	out := args[len(args)-1]
	return os.WriteFile(out, []byte("stub"), 0644)
}

// callsWith returns the invocations whose joined args contain substr.
func (f *fakeRunner) callsWith(substr string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, c := range f.calls {
		if strings.Contains(strings.Join(c, " "), substr) {
			out = append(out, c)
		}
	}
	return out
}

func outputContains(substr string) func([]string) bool {
	return func(args []string) bool {
		return strings.Contains(args[len(args)-1], substr)
	}
}

func argAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

type fakeProber map[string]*MediaInfo

func (p fakeProber) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	info, ok := p[path]
	if !ok {
		return nil, fmt.Errorf("invalid data found when processing input %s", path)
	}
	cp := *info
	return &cp, nil
}

type fakeNarrator struct {
	dir string
	err error
	n   int
}

func (f *fakeNarrator) Narrate(ctx context.Context, jobID, text string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.n++
	path := filepath.Join(f.dir, fmt.Sprintf("narration_%s_%d.mp3", jobID, f.n))
	return path, os.WriteFile(path, []byte(text), 0644)
}

type fakeMusic map[string]string

func (m fakeMusic) Track(style string) (string, bool) {
	if p, ok := m[style]; ok {
		return p, true
	}
	p, ok := m[""]
	return p, ok
}

type sinkEvent struct {
	percent  int
	stage    Stage
	location string
	message  string
}

type fakeSink struct {
	mu           sync.Mutex
	events       []sinkEvent
	completed    string
	failed       string
	completeErrs []error // returned by successive Complete calls
}

func (s *fakeSink) Progress(ctx context.Context, jobID string, percent int, stage Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{percent: percent, stage: stage})
	return nil
}

func (s *fakeSink) Complete(ctx context.Context, jobID, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.completeErrs) > 0 {
		err := s.completeErrs[0]
		s.completeErrs = s.completeErrs[1:]
		if err != nil {
			return err
		}
	}
	s.completed = location
	s.events = append(s.events, sinkEvent{percent: 100, stage: StageDone, location: location})
	return nil
}

func (s *fakeSink) Fail(ctx context.Context, jobID, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = message
	s.events = append(s.events, sinkEvent{stage: StageFailed, message: message})
	return nil
}

type fakePublisher struct {
	base string
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, jobID, path string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return p.base + "/" + filepath.Base(path), nil
}

// touch creates an empty media file and returns its path.
func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("media"), 0644); err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	return path
}

func nullLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
}

// warnedFeatures collects the feature field of every warning entry.
func warnedFeatures(hook *test.Hook) []string {
	var out []string
	for _, e := range hook.AllEntries() {
		if e.Level != logrus.WarnLevel {
			continue
		}
		if f, ok := e.Data["feature"].(string); ok {
			out = append(out, f)
		}
	}
	return out
}
