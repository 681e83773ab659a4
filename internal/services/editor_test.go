package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bobarin/reelforge/internal/models"
	openai "github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus/hooks/test"
)

type stubEditor struct {
	res *EditResult
	err error
}

func (s *stubEditor) EditStoryboard(ctx context.Context, sb *models.Storyboard, message string) (*EditResult, error) {
	return s.res, s.err
}

func sampleStoryboard() *models.Storyboard {
	return &models.Storyboard{Style: "funny", Scenes: []models.Scene{
		{InputType: models.InputUserClip, FilePath: "a.mp4", End: 3, Caption: "one"},
		{InputType: models.InputUserClip, FilePath: "a.mp4", Start: 3, End: 6, Caption: "two"},
	}}
}

func TestChatEditorReturnsOriginalOnError(t *testing.T) {
	log, hook := test.NewNullLogger()
	c := NewChatEditor(&stubEditor{err: errors.New("model overloaded")}, log)
	sb := sampleStoryboard()

	res := c.Edit(context.Background(), sb, "remove the last scene")
	if res.Explanation != editFailedExplanation {
		t.Errorf("explanation = %q", res.Explanation)
	}
	if len(res.Storyboard.Scenes) != 2 {
		t.Errorf("original storyboard should be returned unchanged")
	}
	if len(hook.AllEntries()) != 1 {
		t.Errorf("expected a warning to be logged")
	}
}

func TestChatEditorUnconfigured(t *testing.T) {
	log, _ := test.NewNullLogger()
	res := NewChatEditor(nil, log).Edit(context.Background(), sampleStoryboard(), "x")
	if res.Storyboard == nil || len(res.Storyboard.Scenes) != 2 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestChatEditorPassesThrough(t *testing.T) {
	log, _ := test.NewNullLogger()
	edited := &EditResult{Explanation: "done", Storyboard: &models.Storyboard{Scenes: []models.Scene{{InputType: models.InputUserImage}}}}
	res := NewChatEditor(&stubEditor{res: edited}, log).Edit(context.Background(), sampleStoryboard(), "x")
	if res != edited {
		t.Errorf("expected editor result to pass through")
	}
}

func TestOpenAIEditStoryboard(t *testing.T) {
	var gotReq openai.ChatCompletionRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		json.NewDecoder(r.Body).Decode(&gotReq)

		content := `{"explanation": "Removed the last scene.", "storyboard": {"style": "funny", "scenes": [{"input_type": "user_clip", "file_path": "a.mp4", "end": 3}]}}`
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []map[string]interface{}{{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"}},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	log, _ := test.NewNullLogger()
	svc := newOpenAIService(cfg, "", log)

	res, err := svc.EditStoryboard(context.Background(), sampleStoryboard(), "remove the last scene")
	if err != nil {
		t.Fatalf("EditStoryboard failed: %v", err)
	}
	if res.Explanation != "Removed the last scene." || len(res.Storyboard.Scenes) != 1 {
		t.Errorf("unexpected result %+v", res)
	}
	if gotReq.Model != defaultOpenAIModel {
		t.Errorf("model = %q", gotReq.Model)
	}
	if gotReq.ResponseFormat == nil || gotReq.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Errorf("JSON mode not requested")
	}
	if len(gotReq.Messages) != 2 || !strings.Contains(gotReq.Messages[1].Content, "remove the last scene") {
		t.Errorf("user request missing from prompt: %+v", gotReq.Messages)
	}
}
