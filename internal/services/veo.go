package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/sirupsen/logrus"
	"google.golang.org/genai"
)

// ---------------------------------------------------------------------------
// Veo b-roll generation
// Text-to-video through the Gen AI SDK. The operation is polled until done and
// the clip is written to a local file the renderer can pick up.
// ---------------------------------------------------------------------------

// BrollProviderVeo is the scene provider value served by VeoService.
const BrollProviderVeo = "veo"

const (
	defaultVeoModel    = "veo-3.1-generate-preview"
	veoPollInterval    = 10 * time.Second
	veoMaxPollDuration = 5 * time.Minute
)

// VeoService is optional; planning skips b-roll generation when it is nil.
type VeoService struct {
	apiKey       string
	model        string
	pollInterval time.Duration
	log          logrus.FieldLogger
}

// NewVeoService uses the Gemini API key; an empty model selects the default.
func NewVeoService(apiKey, model string, log logrus.FieldLogger) *VeoService {
	if model == "" {
		model = defaultVeoModel
	}
	return &VeoService{
		apiKey:       apiKey,
		model:        model,
		pollInterval: veoPollInterval,
		log:          log.WithField("component", "veo"),
	}
}

// Provider names Veo for scenes that request it.
func (s *VeoService) Provider() string { return BrollProviderVeo }

// buildBrollPrompt wraps a keyword into a short cinematic b-roll request.
func buildBrollPrompt(keyword string) string {
	return fmt.Sprintf(`Cinematic b-roll footage of %s.
Smooth, natural camera motion. Realistic lighting. No text, no logos, no people facing camera.
Silent video only.`, strings.TrimSpace(keyword))
}

// GenerateBroll renders a short clip for keyword into outputPath.
func (s *VeoService) GenerateBroll(ctx context.Context, keyword string, aspect models.AspectRatio, outputPath string) error {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  s.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("failed to create genai client: %w", err)
	}

	if aspect == "" {
		aspect = models.AspectPortrait
	}
	config := &genai.GenerateVideosConfig{
		AspectRatio:    string(aspect),
		NumberOfVideos: 1,
	}

	log := s.log.WithFields(logrus.Fields{"model": s.model, "keyword": keyword})
	log.Info("Starting b-roll generation")

	operation, err := client.Models.GenerateVideos(ctx, s.model, buildBrollPrompt(keyword), nil, config)
	if err != nil {
		return fmt.Errorf("failed to start video generation: %w", err)
	}

	deadline := time.Now().Add(veoMaxPollDuration)
	pollCount := 0
	for !operation.Done {
		if time.Now().After(deadline) {
			return fmt.Errorf("video generation timed out after %v (polled %d times)", veoMaxPollDuration, pollCount)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("video generation cancelled: %w", ctx.Err())
		case <-time.After(s.pollInterval):
		}

		pollCount++
		operation, err = client.Operations.GetVideosOperation(ctx, operation, nil)
		if err != nil {
			return fmt.Errorf("failed to poll operation (attempt %d): %w", pollCount, err)
		}
	}

	if len(operation.Error) > 0 {
		errJSON, _ := json.Marshal(operation.Error)
		return fmt.Errorf("video generation operation failed: %s", string(errJSON))
	}
	if operation.Response == nil {
		return fmt.Errorf("no response in completed operation %s", operation.Name)
	}
	if operation.Response.RAIMediaFilteredCount > 0 {
		reasons := "unknown"
		if len(operation.Response.RAIMediaFilteredReasons) > 0 {
			reasons = strings.Join(operation.Response.RAIMediaFilteredReasons, ", ")
		}
		return fmt.Errorf("video blocked by safety filters: %s", reasons)
	}
	if len(operation.Response.GeneratedVideos) == 0 || operation.Response.GeneratedVideos[0].Video == nil {
		return fmt.Errorf("no videos in response")
	}

	videoBytes, err := client.Files.Download(ctx, genai.NewDownloadURIFromVideo(operation.Response.GeneratedVideos[0].Video), nil)
	if err != nil {
		return fmt.Errorf("failed to download generated video: %w", err)
	}
	if len(videoBytes) == 0 {
		return fmt.Errorf("downloaded video is empty")
	}

	if err := os.WriteFile(outputPath, videoBytes, 0644); err != nil {
		return fmt.Errorf("failed to write b-roll: %w", err)
	}

	log.WithFields(logrus.Fields{"bytes": len(videoBytes), "polls": pollCount}).Info("B-roll generated")
	return nil
}
