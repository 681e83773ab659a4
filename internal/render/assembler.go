package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/sirupsen/logrus"
)

// musicGain keeps the bed well under speech and source audio.
const musicGain = 0.15

// Assembly is the finished, unpublished timeline.
type Assembly struct {
	Path     string
	Duration float64
	Music    FeatureResult
}

// Assembler concatenates clips, lays the music bed and writes the final file.
type Assembler struct {
	runner    Runner
	music     MusicSource // nil disables music
	outputDir string
	log       logrus.FieldLogger
}

func NewAssembler(runner Runner, music MusicSource, outputDir string, log logrus.FieldLogger) *Assembler {
	return &Assembler{runner: runner, music: music, outputDir: outputDir, log: log}
}

// OutputPath is where a job's reel lands.
func (a *Assembler) OutputPath(jobID string) string {
	return filepath.Join(a.outputDir, fmt.Sprintf("render_%s.mp4", jobID))
}

func (a *Assembler) partialPath(jobID string) string {
	return filepath.Join(a.outputDir, fmt.Sprintf(".render_%s.partial.mp4", jobID))
}

// Assemble joins clips in order. The final file only appears once it is
// complete; a failed run leaves nothing behind in the output directory.
func (a *Assembler) Assemble(ctx context.Context, scope *jobScope, clips []Clip, sb *models.Storyboard) (*Assembly, error) {
	if len(clips) == 0 {
		return nil, ErrNoValidScenes
	}
	if err := os.MkdirAll(a.outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	var total float64
	for _, c := range clips {
		total += c.Duration
	}

	timeline := scope.path("timeline.mp4")
	if err := a.concat(ctx, scope, clips, timeline); err != nil {
		return nil, err
	}

	partial := a.partialPath(scope.jobID)
	defer os.Remove(partial)

	music := unavailable(FeatureMusic, -1, "not requested")
	encoded := false
	if sb.UseMusic {
		track, reason := a.lookupTrack(sb.MusicStyle)
		if track == "" {
			music = a.degrade(scope, reason)
		} else if err := a.runner.Run(ctx, musicArgs(timeline, track, total, partial)); err != nil {
			music = a.degrade(scope, fmt.Sprintf("ffmpeg music mix failed: %v", err))
			os.Remove(partial)
		} else {
			music = applied(FeatureMusic, -1)
			encoded = true
		}
	}

	if !encoded {
		if err := a.runner.Run(ctx, remuxArgs(timeline, partial)); err != nil {
			return nil, fmt.Errorf("ffmpeg final encode failed: %w", err)
		}
	}

	final := a.OutputPath(scope.jobID)
	if err := os.Rename(partial, final); err != nil {
		return nil, fmt.Errorf("failed to move output into place: %w", err)
	}

	return &Assembly{Path: final, Duration: total, Music: music}, nil
}

// concat joins clips with the concat demuxer. Clips share encoding
// parameters so streams are copied.
func (a *Assembler) concat(ctx context.Context, scope *jobScope, clips []Clip, outputPath string) error {
	listPath := scope.path("concat_list.txt")

	var sb strings.Builder
	for _, c := range clips {
		fmt.Fprintf(&sb, "file '%s'\n", strings.ReplaceAll(c.Path, "'", `'\''`))
	}
	if err := os.WriteFile(listPath, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to create concat list: %w", err)
	}

	args := []string{
		"-hide_banner", "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outputPath,
	}
	if err := a.runner.Run(ctx, args); err != nil {
		return fmt.Errorf("ffmpeg concatenate failed: %w", err)
	}
	return nil
}

func (a *Assembler) lookupTrack(style string) (string, string) {
	if a.music == nil {
		return "", "no music library configured"
	}
	track, ok := a.music.Track(style)
	if !ok {
		return "", fmt.Sprintf("no track available for style %q", style)
	}
	if _, err := os.Stat(track); err != nil {
		return "", fmt.Sprintf("music track %s not readable", track)
	}
	return track, ""
}

func (a *Assembler) degrade(scope *jobScope, reason string) FeatureResult {
	a.log.WithFields(logrus.Fields{
		"job_id":  scope.jobID,
		"feature": FeatureMusic,
		"reason":  reason,
	}).Warn("Optional feature unavailable, continuing without it")
	return unavailable(FeatureMusic, -1, reason)
}

// musicArgs loops the track, trims it to exactly the timeline duration and
// mixes it under the existing audio.
func musicArgs(timeline, track string, duration float64, outputPath string) []string {
	d := formatSeconds(duration)
	filter := fmt.Sprintf(
		"[1:a]volume=%.2f,atrim=0:%s,asetpts=PTS-STARTPTS,aresample=%d,aformat=channel_layouts=stereo[music];[0:a][music]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[aout]",
		musicGain, d, audioSampleRate,
	)
	return []string{
		"-hide_banner", "-y",
		"-i", timeline,
		"-stream_loop", "-1",
		"-i", track,
		"-filter_complex", filter,
		"-map", "0:v",
		"-map", "[aout]",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", audioBitrate,
		"-t", d,
		"-movflags", "+faststart",
		outputPath,
	}
}

func remuxArgs(timeline, outputPath string) []string {
	return []string{
		"-hide_banner", "-y",
		"-i", timeline,
		"-c", "copy",
		"-movflags", "+faststart",
		outputPath,
	}
}
