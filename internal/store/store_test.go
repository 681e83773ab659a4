package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/bobarin/reelforge/internal/render"
	"github.com/google/uuid"
)

func newJob() *models.Job {
	return models.NewJob(uuid.NewString(), &models.Storyboard{
		Scenes: []models.Scene{{InputType: models.InputUserImage, FilePath: "a.png"}},
	})
}

// exerciseStore runs the shared contract against any backend.
func exerciseStore(t *testing.T, s JobStore) {
	t.Helper()
	ctx := context.Background()
	job := newJob()

	if err := s.Create(ctx, job); err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := s.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != models.JobStatusQueued || got.Storyboard == nil || len(got.Storyboard.Scenes) != 1 {
		t.Errorf("unexpected job %+v", got)
	}

	updated, err := s.Update(ctx, job.ID, func(j *models.Job) error {
		j.Progress = 42
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Progress != 42 {
		t.Errorf("progress = %d", updated.Progress)
	}

	abort := errors.New("abort")
	if _, err := s.Update(ctx, job.ID, func(j *models.Job) error {
		j.Progress = 99
		return abort
	}); !errors.Is(err, abort) {
		t.Errorf("expected abort error, got %v", err)
	}
	if got, _ := s.Get(ctx, job.ID); got.Progress != 42 {
		t.Errorf("aborted update was written: progress = %d", got.Progress)
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing: %v", err)
	}
	if _, err := s.Update(ctx, "missing", func(*models.Job) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing: %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestMemoryStoreDoesNotAlias(t *testing.T) {
	m := NewMemory()
	job := newJob()
	m.Create(context.Background(), job)

	got, _ := m.Get(context.Background(), job.ID)
	got.Storyboard.Scenes[0].Caption = "mutated"
	msg := "x"
	got.ErrorMessage = &msg

	again, _ := m.Get(context.Background(), job.ID)
	if again.Storyboard.Scenes[0].Caption != "" || again.ErrorMessage != nil {
		t.Errorf("stored record was mutated through a returned copy")
	}
}

func TestMemoryStoreConcurrentUpdates(t *testing.T) {
	m := NewMemory()
	job := newJob()
	m.Create(context.Background(), job)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Update(context.Background(), job.ID, func(j *models.Job) error {
				j.Progress++
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := m.Get(context.Background(), job.ID)
	if got.Progress != 50 {
		t.Errorf("progress = %d, want 50", got.Progress)
	}
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	s, err := NewRedis(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := NewPostgres(context.Background(), url)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	exerciseStore(t, s)
}

// fakePostgREST is a tiny in-memory stand-in for the REST endpoint.
func fakePostgREST(t *testing.T) *httptest.Server {
	var mu sync.Mutex
	rows := map[string]json.RawMessage{}

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if !strings.HasSuffix(r.URL.Path, "/rest/v1/render_jobs") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("apikey") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code":"401","message":"no key"}`))
			return
		}

		switch r.Method {
		case http.MethodGet:
			id := strings.TrimPrefix(r.URL.Query().Get("job_id"), "eq.")
			out := []json.RawMessage{}
			if row, ok := rows[id]; ok {
				out = append(out, row)
			}
			json.NewEncoder(w).Encode(out)
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			var job models.Job
			if err := json.Unmarshal(body, &job); err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"code":"400","message":"bad body"}`))
				return
			}
			upsert := strings.Contains(r.Header.Get("Prefer"), "merge-duplicates")
			if _, exists := rows[job.ID]; exists && !upsert {
				w.WriteHeader(http.StatusConflict)
				w.Write([]byte(`{"code":"23505","message":"duplicate key"}`))
				return
			}
			rows[job.ID] = body
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte("[" + string(body) + "]"))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
}

func TestPostgRESTStore(t *testing.T) {
	srv := fakePostgREST(t)
	defer srv.Close()

	s, err := NewPostgREST(srv.URL, "key", "")
	if err != nil {
		t.Fatal(err)
	}
	exerciseStore(t, s)
}

func TestSinkLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	job := newJob()
	m.Create(ctx, job)
	sink := NewSink(m)

	sink.Progress(ctx, job.ID, 20, render.StageMediaReady)
	got, _ := m.Get(ctx, job.ID)
	if got.Status != models.JobStatusProcessing || got.StartedAt == nil || got.Progress != 20 {
		t.Fatalf("after first progress: %+v", got)
	}

	sink.Progress(ctx, job.ID, 5, render.StageStarted)
	got, _ = m.Get(ctx, job.ID)
	if got.Progress != 20 || got.Stage != string(render.StageMediaReady) {
		t.Errorf("progress went backwards: %d %s", got.Progress, got.Stage)
	}

	sink.Complete(ctx, job.ID, "http://x/render.mp4")
	got, _ = m.Get(ctx, job.ID)
	if got.Status != models.JobStatusCompleted || got.Progress != 100 || got.OutputURL == nil || *got.OutputURL != "http://x/render.mp4" || got.FinishedAt == nil {
		t.Errorf("after complete: %+v", got)
	}

	sink.Fail(ctx, job.ID, "late failure")
	sink.Progress(ctx, job.ID, 80, render.StageEncoding)
	got, _ = m.Get(ctx, job.ID)
	if got.Status != models.JobStatusCompleted || got.ErrorMessage != nil || got.Stage != string(render.StageDone) {
		t.Errorf("terminal job changed: %+v", got)
	}
}

func TestSinkFail(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	job := newJob()
	m.Create(ctx, job)

	NewSink(m).Fail(ctx, job.ID, render.ErrNoValidScenes.Error())
	got, _ := m.Get(ctx, job.ID)
	if got.Status != models.JobStatusFailed || got.ErrorMessage == nil || *got.ErrorMessage != "no valid scenes to render" {
		t.Errorf("after fail: %+v", got)
	}

	if err := NewSink(m).Progress(ctx, "missing", 5, render.StageStarted); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
