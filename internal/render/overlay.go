package render

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// originalAudioGain is applied to a clip's own sound under narration.
const originalAudioGain = 0.30

// OverlayComposer applies the optional per-clip stages. Neither stage can fail
// a render: on any problem the input clip is returned untouched together with
// an unavailable FeatureResult.
type OverlayComposer struct {
	runner   Runner
	narrator Narrator // nil when no TTS provider is configured
	log      logrus.FieldLogger
}

func NewOverlayComposer(runner Runner, narrator Narrator, log logrus.FieldLogger) *OverlayComposer {
	return &OverlayComposer{runner: runner, narrator: narrator, log: log}
}

// Caption burns the scene caption into the clip.
func (o *OverlayComposer) Caption(ctx context.Context, scope *jobScope, clip Clip) (Clip, FeatureResult) {
	text := strings.TrimSpace(clip.Scene.Caption)
	if text == "" {
		return clip, unavailable(FeatureCaption, clip.Index, "no caption text")
	}

	assPath := scope.path(fmt.Sprintf("scene_%03d_caption.ass", clip.Index))
	if err := writeCaptionASS(assPath, clip.Frame, text, clip.Duration); err != nil {
		return o.degrade(scope, clip, FeatureCaption, err)
	}

	layout := layoutCaption(clip.Frame)
	vf := fmt.Sprintf("%s,ass='%s'", layout.drawboxFilter(), escapeFilterPath(assPath))
	out := scope.path(fmt.Sprintf("scene_%03d_captioned.mp4", clip.Index))

	args := []string{
		"-hide_banner", "-y",
		"-i", clip.Path,
		"-vf", vf,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-c:a", "copy",
		out,
	}
	if err := o.runner.Run(ctx, args); err != nil {
		return o.degrade(scope, clip, FeatureCaption, fmt.Errorf("ffmpeg caption burn-in failed: %w", err))
	}

	next := clip
	next.Path = out
	return next, applied(FeatureCaption, clip.Index)
}

// Voiceover mixes synthesized narration over the clip's attenuated audio.
func (o *OverlayComposer) Voiceover(ctx context.Context, scope *jobScope, clip Clip) (Clip, FeatureResult) {
	if o.narrator == nil {
		return o.degrade(scope, clip, FeatureVoiceover, fmt.Errorf("no speech provider configured"))
	}
	text := strings.TrimSpace(clip.Scene.NarrationText())
	if text == "" {
		return clip, unavailable(FeatureVoiceover, clip.Index, "no narration text")
	}

	narration, err := o.narrator.Narrate(ctx, scope.jobID, text)
	if err != nil {
		return o.degrade(scope, clip, FeatureVoiceover, fmt.Errorf("speech synthesis failed: %w", err))
	}
	scope.track(narration)

	// [0:a] clip audio pulled down under the voice
	// [1:a] narration, normalized to the clip's sample format
	// amix ends with the clip so timing never changes
	filter := fmt.Sprintf(
		"[0:a]volume=%.2f[orig];[1:a]aresample=%d,aformat=channel_layouts=stereo[voice];[orig][voice]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[aout]",
		originalAudioGain, audioSampleRate,
	)
	out := scope.path(fmt.Sprintf("scene_%03d_voiced.mp4", clip.Index))

	args := []string{
		"-hide_banner", "-y",
		"-i", clip.Path,
		"-i", narration,
		"-filter_complex", filter,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-ar", fmt.Sprint(audioSampleRate),
		"-ac", "2",
		out,
	}
	if err := o.runner.Run(ctx, args); err != nil {
		return o.degrade(scope, clip, FeatureVoiceover, fmt.Errorf("ffmpeg narration mix failed: %w", err))
	}

	next := clip
	next.Path = out
	return next, applied(FeatureVoiceover, clip.Index)
}

func (o *OverlayComposer) degrade(scope *jobScope, clip Clip, feature string, err error) (Clip, FeatureResult) {
	o.log.WithFields(logrus.Fields{
		"job_id":  scope.jobID,
		"scene":   clip.Index,
		"feature": feature,
		"reason":  err.Error(),
	}).Warn("Optional feature unavailable, continuing without it")
	return clip, unavailable(feature, clip.Index, err.Error())
}
