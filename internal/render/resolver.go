package render

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/bobarin/reelforge/internal/models"
)

type sourceKind int

const (
	sourceVideo sourceKind = iota
	sourceImage
	sourcePlaceholder
)

// ResolvedScene is a scene that passed resolution, with concrete timing.
type ResolvedScene struct {
	Index    int
	Scene    models.Scene
	Source   string // local path; empty for placeholders
	Start    float64
	Duration float64
	Info     MediaInfo
	kind     sourceKind
}

// Rejection explains why a scene was dropped.
type Rejection struct {
	Index  int
	Reason string
}

func (r Rejection) String() string {
	return fmt.Sprintf("scene %d: %s", r.Index, r.Reason)
}

// Resolver normalizes raw scenes against the resolved media mapping.
type Resolver struct {
	prober           Prober
	placeholderBroll bool
}

func NewResolver(prober Prober, placeholderBroll bool) *Resolver {
	return &Resolver{prober: prober, placeholderBroll: placeholderBroll}
}

// Resolve returns the valid scenes in storyboard order plus a rejection for
// every scene that was dropped.
func (r *Resolver) Resolve(ctx context.Context, sb *models.Storyboard, media map[string]string) ([]ResolvedScene, []Rejection) {
	var (
		valid    []ResolvedScene
		rejected []Rejection
	)
	for i, scene := range sb.Scenes {
		rs, err := r.resolveScene(ctx, i, scene, media)
		if err != nil {
			rejected = append(rejected, Rejection{Index: i, Reason: err.Error()})
			continue
		}
		valid = append(valid, rs)
	}
	return valid, rejected
}

func (r *Resolver) resolveScene(ctx context.Context, index int, scene models.Scene, media map[string]string) (ResolvedScene, error) {
	rs := ResolvedScene{Index: index, Scene: scene}

	switch scene.InputType {
	case models.InputUserClip:
		path, ok := lookupMedia(media, scene.FilePath)
		if !ok {
			return rs, fmt.Errorf("media %q not resolved", scene.FilePath)
		}
		info, err := r.prober.Probe(ctx, path)
		if err != nil {
			return rs, fmt.Errorf("undecodable source: %w", err)
		}
		if !info.HasVideo || info.Duration <= 0 {
			return rs, fmt.Errorf("source has no video stream")
		}
		start, dur, err := clampWindow(scene.Start, scene.End, info.Duration)
		if err != nil {
			return rs, err
		}
		rs.Source, rs.Info, rs.Start, rs.Duration, rs.kind = path, *info, start, dur, sourceVideo
		return rs, nil

	case models.InputUserImage:
		path, ok := lookupMedia(media, scene.FilePath)
		if !ok {
			return rs, fmt.Errorf("media %q not resolved", scene.FilePath)
		}
		info, err := r.prober.Probe(ctx, path)
		if err != nil {
			return rs, fmt.Errorf("undecodable image: %w", err)
		}
		rs.Source, rs.Info, rs.Duration, rs.kind = path, *info, stillDuration(scene.Duration), sourceImage
		return rs, nil

	case models.InputAIBroll:
		dur := stillDuration(scene.Duration)
		path, ok := lookupMedia(media, scene.FilePath, scene.BRollKeyword)
		if !ok {
			if r.placeholderBroll {
				rs.Duration, rs.kind = dur, sourcePlaceholder
				return rs, nil
			}
			return rs, fmt.Errorf("b-roll %q not resolved", scene.MediaRef())
		}
		info, err := r.prober.Probe(ctx, path)
		if err != nil {
			return rs, fmt.Errorf("undecodable b-roll: %w", err)
		}
		rs.Source, rs.Info = path, *info
		if isStillImage(path) || info.Duration <= 0 {
			rs.kind = sourceImage
		} else {
			rs.kind = sourceVideo
			if info.Duration < dur {
				dur = info.Duration
			}
		}
		rs.Duration = dur
		return rs, nil
	}

	return rs, fmt.Errorf("unknown input type %q", scene.InputType)
}

// clampWindow bounds [start, end] to the source, rejects empty windows, then
// stretches short windows to MinClipSeconds where the source allows.
func clampWindow(start, end, sourceDuration float64) (float64, float64, error) {
	start = math.Max(start, 0)
	end = math.Min(end, sourceDuration)
	if end <= start {
		return 0, 0, fmt.Errorf("empty window %.2f-%.2f (source %.2fs)", start, end, sourceDuration)
	}

	if end-start < models.MinClipSeconds {
		end = math.Min(start+models.MinClipSeconds, sourceDuration)
		if end-start < models.MinClipSeconds {
			start = math.Max(end-models.MinClipSeconds, 0)
		}
	}
	return start, end - start, nil
}

func stillDuration(d float64) float64 {
	if d <= 0 {
		return models.DefaultImageSeconds
	}
	return d
}

func lookupMedia(media map[string]string, refs ...string) (string, bool) {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if path, ok := media[ref]; ok && path != "" {
			return path, true
		}
	}
	return "", false
}

func isStillImage(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".webp", ".bmp", ".gif", ".heic":
		return true
	}
	return false
}
