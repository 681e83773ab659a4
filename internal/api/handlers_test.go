package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/bobarin/reelforge/internal/services"
	"github.com/bobarin/reelforge/internal/store"
	"github.com/bobarin/reelforge/internal/worker"
	"github.com/sirupsen/logrus/hooks/test"
)

type stubPlanner struct {
	got services.PlanRequest
	sb  *models.Storyboard
	err error
}

func (p *stubPlanner) Plan(ctx context.Context, req services.PlanRequest) (*models.Storyboard, error) {
	p.got = req
	return p.sb, p.err
}

type stubEditor struct{}

func (stubEditor) Edit(ctx context.Context, sb *models.Storyboard, message string) *services.EditResult {
	out := sb.Clone()
	out.Scenes = out.Scenes[:1]
	return &services.EditResult{Explanation: "Kept the first scene.", Storyboard: out}
}

type stubDispatcher struct {
	tasks []worker.Task
	err   error
}

func (d *stubDispatcher) Submit(task worker.Task) error {
	if d.err != nil {
		return d.err
	}
	d.tasks = append(d.tasks, task)
	return nil
}

type testServer struct {
	router     http.Handler
	jobs       *store.Memory
	planner    *stubPlanner
	dispatcher *stubDispatcher
	outputDir  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log, _ := test.NewNullLogger()
	ts := &testServer{
		jobs:       store.NewMemory(),
		planner:    &stubPlanner{},
		dispatcher: &stubDispatcher{},
		outputDir:  t.TempDir(),
	}
	h := NewHandler(ts.jobs, ts.planner, stubEditor{}, ts.dispatcher, log)
	ts.router = NewRouter(h, RouterConfig{OutputDir: ts.outputDir}, log)
	return ts
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

const validStoryboard = `{"aspect_ratio": "9:16", "use_music": true, "scenes": [
	{"input_type": "user_clip", "file_path": "a.mp4", "start": 0, "end": 4, "role": "hook", "caption": "Watch"},
	{"input_type": "user_image", "file_path": "b.png", "duration": 3}
]}`

func TestHealth(t *testing.T) {
	rec := newTestServer(t).do(http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", rec.Code, rec.Body)
	}
}

func TestRenderQueuesJob(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/v1/render", `{"storyboard": `+validStoryboard+`, "media": {"a.mp4": "storage://uploads/a.mp4"}}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var resp models.RenderResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.JobID == "" || resp.Status != models.JobStatusQueued {
		t.Errorf("response = %+v", resp)
	}
	if len(ts.dispatcher.tasks) != 1 || ts.dispatcher.tasks[0].JobID != resp.JobID {
		t.Fatalf("tasks = %+v", ts.dispatcher.tasks)
	}
	if ts.dispatcher.tasks[0].Media["a.mp4"] != "storage://uploads/a.mp4" {
		t.Errorf("media mapping not forwarded")
	}

	rec = ts.do(http.MethodGet, "/v1/jobs/"+resp.JobID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get job = %d", rec.Code)
	}
	var job models.Job
	json.NewDecoder(rec.Body).Decode(&job)
	if job.ID != resp.JobID || job.Status != models.JobStatusQueued {
		t.Errorf("job = %+v", job)
	}
}

func TestRenderValidation(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{"storyboard": `},
		{"missing storyboard", `{}`},
		{"no scenes", `{"storyboard": {"scenes": []}}`},
		{"bad input type", `{"storyboard": {"scenes": [{"input_type": "hologram"}]}}`},
		{"bad aspect", `{"storyboard": {"aspect_ratio": "4:3", "scenes": [{"input_type": "user_image", "file_path": "a.png"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, "/v1/render", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d: %s", rec.Code, rec.Body)
			}
		})
	}
	if len(ts.dispatcher.tasks) != 0 {
		t.Errorf("invalid requests were dispatched")
	}
}

func TestRenderQueueFull(t *testing.T) {
	ts := newTestServer(t)
	ts.dispatcher.err = worker.ErrQueueFull

	rec := ts.do(http.MethodPost, "/v1/render", `{"storyboard": `+validStoryboard+`}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestGetUnknownJob(t *testing.T) {
	rec := newTestServer(t).do(http.MethodGet, "/v1/jobs/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp models.RenderResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Status != models.JobStatusUnknown || resp.JobID != "nope" {
		t.Errorf("response = %+v", resp)
	}
}

func TestAnalyze(t *testing.T) {
	ts := newTestServer(t)
	ts.planner.sb = &models.Storyboard{Note: "planned", Scenes: []models.Scene{{InputType: models.InputUserClip, FilePath: "a.mp4"}}}

	rec := ts.do(http.MethodPost, "/v1/analyze", `{"media_paths": ["a.mp4"], "style": "funny", "duration": 20, "aspect_ratio": "16:9", "use_voiceover": true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if ts.planner.got.TargetDuration != 20 || ts.planner.got.AspectRatio != models.AspectLandscape || !ts.planner.got.UseVoiceover {
		t.Errorf("plan request = %+v", ts.planner.got)
	}

	if rec := ts.do(http.MethodPost, "/v1/analyze", `{"media_paths": []}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty media status = %d", rec.Code)
	}

	ts.planner.err = errors.New("boom")
	if rec := ts.do(http.MethodPost, "/v1/analyze", `{"media_paths": ["a.mp4"]}`); rec.Code != http.StatusInternalServerError {
		t.Errorf("planner error status = %d", rec.Code)
	}
}

func TestChatEdit(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(http.MethodPost, "/v1/chat/edit", `{"storyboard": `+validStoryboard+`, "message": "shorter please"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var resp models.ChatEditResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Explanation == "" || len(resp.Storyboard.Scenes) != 1 {
		t.Errorf("response = %+v", resp)
	}

	if rec := ts.do(http.MethodPost, "/v1/chat/edit", `{"storyboard": `+validStoryboard+`}`); rec.Code != http.StatusBadRequest {
		t.Errorf("missing message status = %d", rec.Code)
	}
}

func TestOutputsServed(t *testing.T) {
	ts := newTestServer(t)
	os.WriteFile(filepath.Join(ts.outputDir, "render_job.mp4"), []byte("reel"), 0644)

	rec := ts.do(http.MethodGet, "/outputs/render_job.mp4", "")
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), []byte("reel")) {
		t.Errorf("outputs = %d %q", rec.Code, rec.Body)
	}
}
