// Package render turns a storyboard into a single MP4 reel.
//
// The pipeline resolves scenes against local media, builds one normalized
// clip per valid scene, applies best-effort caption and voiceover overlays,
// concatenates the clips in order, optionally lays a music bed underneath and
// publishes the result. ffmpeg is reached only through the Runner and Prober
// interfaces.
package render

import (
	"context"
	"errors"
)

var (
	// ErrNoValidScenes means nothing in the storyboard could be rendered.
	ErrNoValidScenes = errors.New("no valid scenes to render")
	// ErrFeatureUnavailable marks an optional stage that was skipped.
	ErrFeatureUnavailable = errors.New("feature unavailable")
)

// Runner executes one ffmpeg invocation. args excludes the binary name.
type Runner interface {
	Run(ctx context.Context, args []string) error
}

// MediaInfo is what the pipeline needs to know about a source file.
type MediaInfo struct {
	Duration float64 // seconds; 0 for stills
	Width    int     // displayed size, after rotation metadata is applied
	Height   int
	HasVideo bool
	HasAudio bool
}

// Prober inspects a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (*MediaInfo, error)
}

// Narrator synthesizes speech into a new file the caller owns.
type Narrator interface {
	Narrate(ctx context.Context, jobID, text string) (string, error)
}

// MusicSource finds a local music track for a style label.
type MusicSource interface {
	Track(style string) (string, bool)
}

// Publisher makes a finished file reachable and returns its location.
type Publisher interface {
	Publish(ctx context.Context, jobID, path string) (string, error)
}

// Optional stage names used in results and log fields.
const (
	FeatureCaption   = "caption"
	FeatureVoiceover = "voiceover"
	FeatureMusic     = "music"
)

// FeatureResult records the outcome of an optional stage.
type FeatureResult struct {
	Feature string `json:"feature"`
	Scene   int    `json:"scene"` // -1 for timeline-wide features
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

func applied(feature string, scene int) FeatureResult {
	return FeatureResult{Feature: feature, Scene: scene, Applied: true}
}

func unavailable(feature string, scene int, reason string) FeatureResult {
	return FeatureResult{Feature: feature, Scene: scene, Reason: reason}
}

// Err returns ErrFeatureUnavailable wrapped with the reason, or nil.
func (r FeatureResult) Err() error {
	if r.Applied || r.Reason == "" {
		return nil
	}
	return &featureError{feature: r.Feature, reason: r.Reason}
}

type featureError struct {
	feature string
	reason  string
}

func (e *featureError) Error() string {
	return e.feature + " unavailable: " + e.reason
}

func (e *featureError) Unwrap() error { return ErrFeatureUnavailable }
