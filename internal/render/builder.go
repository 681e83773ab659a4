package render

import (
	"context"
	"fmt"
	"math"
	"strconv"

	"github.com/bobarin/reelforge/internal/models"
)

const (
	// zoomPerSecond is the growth rate of the slow linear zoom.
	zoomPerSecond = 0.04

	audioSampleRate = 44100
	audioBitrate    = "192k"
	placeholderRGB  = "0x1a1a1a"
)

// Clip is one rendered scene on disk.
type Clip struct {
	Index    int          `json:"scene"`
	Path     string       `json:"-"`
	Duration float64      `json:"duration"`
	Frame    Frame        `json:"-"`
	Scene    models.Scene `json:"-"`
}

// ClipBuilder turns a resolved scene into a normalized clip: exact frame size,
// constant frame rate, stereo AAC audio.
type ClipBuilder struct {
	runner Runner
	fps    int
}

func NewClipBuilder(runner Runner, fps int) *ClipBuilder {
	if fps <= 0 {
		fps = 30
	}
	return &ClipBuilder{runner: runner, fps: fps}
}

// Build renders rs into outputPath.
func (b *ClipBuilder) Build(ctx context.Context, rs ResolvedScene, frame Frame, outputPath string) (Clip, error) {
	dur := b.frameAligned(rs.Duration)
	args := b.buildArgs(rs, frame, dur, outputPath)
	if err := b.runner.Run(ctx, args); err != nil {
		return Clip{}, fmt.Errorf("ffmpeg build clip failed (scene %d): %w", rs.Index, err)
	}
	return Clip{Index: rs.Index, Path: outputPath, Duration: dur, Frame: frame, Scene: rs.Scene}, nil
}

// frameAligned rounds d to a whole number of frames so the timeline sum is exact.
func (b *ClipBuilder) frameAligned(d float64) float64 {
	frames := math.Round(d * float64(b.fps))
	if frames < 1 {
		frames = 1
	}
	return frames / float64(b.fps)
}

func (b *ClipBuilder) buildArgs(rs ResolvedScene, frame Frame, dur float64, outputPath string) []string {
	d := formatSeconds(dur)
	fps := strconv.Itoa(b.fps)

	args := []string{"-hide_banner", "-y"}
	fit := FitToFrame(rs.Info.Width, rs.Info.Height, frame)

	switch rs.kind {
	case sourceVideo:
		args = append(args, "-ss", formatSeconds(rs.Start), "-t", d, "-i", rs.Source)
	case sourceImage:
		args = append(args, "-loop", "1", "-framerate", fps, "-t", d, "-i", rs.Source)
	case sourcePlaceholder:
		fit = FitToFrame(frame.Width, frame.Height, frame)
		args = append(args, "-f", "lavfi", "-t", d, "-i",
			fmt.Sprintf("color=c=%s:s=%s:r=%d", placeholderRGB, frame, b.fps))
	}

	// Input 1 is always a silent bed so every clip carries an audio stream.
	args = append(args, "-f", "lavfi", "-t", d, "-i",
		fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=%d", audioSampleRate))

	audio := "[1:a]anull[a]"
	if rs.kind == sourceVideo && rs.Info.HasAudio {
		audio = fmt.Sprintf("[0:a]aresample=%d,aformat=channel_layouts=stereo,apad[a]", audioSampleRate)
	}

	filter := fmt.Sprintf("[0:v]%s[v];%s", b.videoChain(rs.Scene, fit), audio)

	args = append(args,
		"-filter_complex", filter,
		"-map", "[v]",
		"-map", "[a]",
		"-r", fps,
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-ar", strconv.Itoa(audioSampleRate),
		"-ac", "2",
		"-t", d,
		outputPath,
	)
	return args
}

// videoChain is scale/crop, constant frame rate and the optional zoom.
func (b *ClipBuilder) videoChain(scene models.Scene, fit Fit) string {
	chain := fmt.Sprintf("%s,fps=%d", fit.Filter(), b.fps)
	if scene.Zooms() {
		chain += "," + zoomFilter(fit.Frame, b.fps)
	}
	return chain + ",format=yuv420p"
}

// zoomFilter emits one output frame per input frame (d=1) with the zoom
// factor growing linearly in time, centered on the frame.
func zoomFilter(frame Frame, fps int) string {
	return fmt.Sprintf(
		"zoompan=z='1+%.2f*on/%d':x='iw/2-(iw/zoom/2)':y='ih/2-(ih/zoom/2)':d=1:s=%s:fps=%d",
		zoomPerSecond, fps, frame, fps,
	)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
