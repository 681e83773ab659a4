package services

import (
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Gemini storyboard analysis and chat editing
// Media is uploaded through the Files API (at most 5 at a time), then a single
// multimodal request asks for a JSON storyboard.
// ---------------------------------------------------------------------------

const (
	defaultGeminiModel   = "gemini-2.5-flash"
	geminiUploadLimit    = 5
	geminiFilePoll       = time.Second
	geminiMaxFileWait    = 3 * time.Minute
	geminiRequestTimeout = 3 * time.Minute
)

type GeminiService struct {
	apiKey string
	model  string
	log    logrus.FieldLogger
}

func NewGeminiService(apiKey, model string, log logrus.FieldLogger) *GeminiService {
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiService{
		apiKey: apiKey,
		model:  model,
		log:    log.WithField("component", "gemini"),
	}
}

func (s *GeminiService) newClient(ctx context.Context) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

// Analyze uploads the media and asks the model for a storyboard.
func (s *GeminiService) Analyze(ctx context.Context, req PlanRequest) (*models.Storyboard, error) {
	ctx, cancel := context.WithTimeout(ctx, geminiRequestTimeout)
	defer cancel()

	client, err := s.newClient(ctx)
	if err != nil {
		return nil, err
	}

	files, err := s.uploadAll(ctx, client, req.MediaPaths)
	if err != nil {
		return nil, err
	}

	parts := make([]*genai.Part, 0, len(files)+1)
	for _, f := range files {
		parts = append(parts, genai.NewPartFromURI(f.URI, f.MIMEType))
	}
	parts = append(parts, genai.NewPartFromText(analysisPrompt(req, len(files))))

	resp, err := client.Models.GenerateContent(ctx, s.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini analysis request failed: %w", err)
	}

	sb, err := parseStoryboard(resp.Text(), req)
	if err != nil {
		s.log.WithField("response", truncateString(resp.Text(), 2000)).Warn("Unparseable storyboard response")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"scenes": len(sb.Scenes), "files": len(files)}).Info("Storyboard generated")
	return sb, nil
}

// uploadAll uploads supported files in parallel. Individual failures are
// skipped; the call only fails when nothing could be uploaded.
func (s *GeminiService) uploadAll(ctx context.Context, client *genai.Client, paths []string) ([]*genai.File, error) {
	results := make([]*genai.File, len(paths))
	var mu sync.Mutex
	var failures []string

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(geminiUploadLimit)

	for i, path := range paths {
		mimeType := mimeTypeFor(path)
		if mimeType == "" {
			continue
		}
		g.Go(func() error {
			f, err := s.upload(gctx, client, path, mimeType)
			if err != nil {
				s.log.WithError(err).WithField("file", filepath.Base(path)).Warn("Upload failed, skipping file")
				mu.Lock()
				failures = append(failures, filepath.Base(path))
				mu.Unlock()
				return nil
			}
			results[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var files []*genai.File
	for _, f := range results {
		if f != nil {
			files = append(files, f)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no media could be uploaded for analysis (failed: %s)", strings.Join(failures, ", "))
	}
	return files, nil
}

func (s *GeminiService) upload(ctx context.Context, client *genai.Client, path, mimeType string) (*genai.File, error) {
	f, err := client.Files.UploadFromPath(ctx, path, &genai.UploadFileConfig{MIMEType: mimeType})
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filepath.Base(path), err)
	}

	deadline := time.Now().Add(geminiMaxFileWait)
	for f.State == genai.FileStateProcessing {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("file %s still processing after %v", f.Name, geminiMaxFileWait)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(geminiFilePoll):
		}
		f, err = client.Files.Get(ctx, f.Name, nil)
		if err != nil {
			return nil, fmt.Errorf("poll file %s: %w", filepath.Base(path), err)
		}
	}
	if f.State == genai.FileStateFailed {
		return nil, fmt.Errorf("file %s failed processing", filepath.Base(path))
	}
	return f, nil
}

// EditStoryboard applies a natural-language edit.
func (s *GeminiService) EditStoryboard(ctx context.Context, sb *models.Storyboard, message string) (*EditResult, error) {
	prompt, err := editPrompt(sb, message)
	if err != nil {
		return nil, err
	}

	client, err := s.newClient(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := client.Models.GenerateContent(ctx, s.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		return nil, fmt.Errorf("gemini edit request failed: %w", err)
	}
	return parseEditResult(resp.Text())
}

func analysisPrompt(req PlanRequest, fileCount int) string {
	durationRule := fmt.Sprintf("Target length: %.0f seconds. The reel must end at or before this point.", req.TargetDuration)
	if req.TargetDuration <= 0 {
		durationRule = "Target length: flexible. End when the story is complete, usually 30-60 seconds."
	}
	format := "vertical reel"
	if req.AspectRatio == models.AspectLandscape {
		format = "horizontal video"
	}

	names := make([]string, len(req.MediaPaths))
	for i, p := range req.MediaPaths {
		names[i] = filepath.Base(p)
	}
	nameList, _ := json.Marshal(names)

	return fmt.Sprintf(`You are a video editor. %d media files are attached.
Create a %s style %s.
%s
Open with a hook, build in the body, end with a punch. Use 4-6 scenes.
Timestamps are seconds in the source file. Every clip must be at least 2.0 seconds.

Respond with JSON only:
{"scenes": [{"input_type": "user_clip|user_image", "file_path": "<file name>", "start": 0.0, "end": 3.5, "duration": 3.5, "role": "hook|body|punch", "caption": "short overlay text", "effect": "slow_zoom_in|none"}]}

file_path must be one of: %s`, fileCount, req.Style, format, durationRule, nameList)
}

func mimeTypeFor(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".avi":
		return "video/x-msvideo"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	}
	if t := mime.TypeByExtension(ext); strings.HasPrefix(t, "video/") || strings.HasPrefix(t, "image/") {
		return t
	}
	return ""
}

// truncateString truncates a string to maxLen and appends "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
