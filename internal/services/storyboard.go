package services

import (
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/bobarin/reelforge/internal/models"
)

// PlanRequest is the input to storyboard planning.
type PlanRequest struct {
	MediaPaths     []string
	Style          string
	TargetDuration float64 // 0 = flexible
	AspectRatio    models.AspectRatio
	UseMusic       bool
	UseVoiceover   bool
	MusicStyle     string
}

// EditResult is a chat edit outcome.
type EditResult struct {
	Explanation string             `json:"explanation"`
	Storyboard  *models.Storyboard `json:"storyboard"`
}

const (
	fallbackNote          = "Generated via fallback (analysis unavailable)"
	fallbackFlexTarget    = 30.0
	fallbackLongThreshold = 15.0
	fallbackUnknownLength = 5.0
)

// stripCodeFence removes a surrounding ```json fence that models like to add.
func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimPrefix(text, "json")
	if i := strings.LastIndex(text, "```"); i >= 0 {
		text = text[:i]
	}
	return strings.TrimSpace(text)
}

// parseStoryboard decodes a model response and maps file names back to the
// full paths that were uploaded. Unknown names fall back to the first media
// item.
func parseStoryboard(text string, req PlanRequest) (*models.Storyboard, error) {
	var sb models.Storyboard
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &sb); err != nil {
		return nil, fmt.Errorf("failed to parse storyboard: %w", err)
	}
	if len(sb.Scenes) == 0 {
		return nil, fmt.Errorf("storyboard has no scenes")
	}

	byName := make(map[string]string, len(req.MediaPaths))
	for _, p := range req.MediaPaths {
		byName[filepath.Base(p)] = p
	}
	for i := range sb.Scenes {
		sc := &sb.Scenes[i]
		if sc.InputType == models.InputAIBroll {
			continue
		}
		if full, ok := byName[filepath.Base(sc.FilePath)]; ok {
			sc.FilePath = full
		} else if len(req.MediaPaths) > 0 {
			sc.FilePath = req.MediaPaths[0]
		}
	}

	if sb.Style == "" {
		sb.Style = req.Style
	}
	if sb.TargetDuration == 0 {
		sb.TargetDuration = req.TargetDuration
	}
	applyPlanFlags(&sb, req)
	return &sb, nil
}

func applyPlanFlags(sb *models.Storyboard, req PlanRequest) {
	sb.AspectRatio = req.AspectRatio
	if sb.AspectRatio == "" {
		sb.AspectRatio = models.AspectPortrait
	}
	sb.UseMusic = req.UseMusic
	sb.UseVoiceover = req.UseVoiceover
	if req.MusicStyle != "" {
		sb.MusicStyle = req.MusicStyle
	}
}

// FallbackStoryboard builds a hook/body/punch cut of the first media item
// without any model. sourceDuration <= 0 means the length is unknown.
func FallbackStoryboard(req PlanRequest, sourceDuration float64) *models.Storyboard {
	sb := &models.Storyboard{
		Style:          req.Style,
		TargetDuration: req.TargetDuration,
		Note:           fallbackNote,
	}
	applyPlanFlags(sb, req)
	if len(req.MediaPaths) == 0 {
		return sb
	}

	main := req.MediaPaths[0]
	if sourceDuration <= 0 {
		sourceDuration = fallbackUnknownLength
	}
	target := req.TargetDuration
	if target <= 0 {
		target = fallbackFlexTarget
	}

	if sourceDuration > fallbackLongThreshold {
		seg := math.Min(target/3, sourceDuration/3)
		mid := sourceDuration / 2
		sb.Scenes = []models.Scene{
			{InputType: models.InputUserClip, FilePath: main, Start: 0, End: seg,
				Role: models.RoleHook, Caption: "POV: You find this...", Effect: models.EffectSlowZoomIn},
			{InputType: models.InputUserClip, FilePath: main, Start: mid, End: mid + seg,
				Role: models.RoleBody, Caption: "And then it gets better", Effect: models.EffectNone},
			{InputType: models.InputUserClip, FilePath: main, Start: sourceDuration - seg, End: sourceDuration,
				Role: models.RolePunch, Caption: "Wait for IT!", Effect: models.EffectSlowZoomIn},
		}
		return sb
	}

	sb.Scenes = []models.Scene{
		{InputType: models.InputUserClip, FilePath: main, Start: 0, End: math.Min(sourceDuration, target),
			Role: models.RoleHook, Caption: "Watch this!", Effect: models.EffectSlowZoomIn},
	}
	return sb
}

// parseEditResult decodes a chat edit response.
func parseEditResult(text string) (*EditResult, error) {
	var res EditResult
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &res); err != nil {
		return nil, fmt.Errorf("failed to parse edit response: %w", err)
	}
	if res.Storyboard == nil || len(res.Storyboard.Scenes) == 0 {
		return nil, fmt.Errorf("edit response has no storyboard scenes")
	}
	if res.Explanation == "" {
		res.Explanation = "Updated the storyboard."
	}
	return &res, nil
}

func editPrompt(sb *models.Storyboard, message string) (string, error) {
	current, err := json.MarshalIndent(sb, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode storyboard: %w", err)
	}
	return fmt.Sprintf(`You edit short-form video storyboards.

CURRENT STORYBOARD JSON:
%s

USER REQUEST: %q

Apply the request to the storyboard, keep every other field as it is, and keep the structure valid.
Respond with JSON only: {"explanation": "<one sentence>", "storyboard": { ...full updated storyboard... }}`, current, message), nil
}
