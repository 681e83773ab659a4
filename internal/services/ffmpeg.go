package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/bobarin/reelforge/internal/render"
	"github.com/sirupsen/logrus"
)

// stderrTail bounds how much ffmpeg output ends up in error messages.
const stderrTail = 2048

// FFmpegService runs ffmpeg and ffprobe as subprocesses.
type FFmpegService struct {
	ffmpegPath  string
	ffprobePath string
	log         logrus.FieldLogger
}

var (
	_ render.Runner = (*FFmpegService)(nil)
	_ render.Prober = (*FFmpegService)(nil)
)

func NewFFmpegService(ffmpegPath, ffprobePath string, log logrus.FieldLogger) *FFmpegService {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegService{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		log:         log.WithField("component", "ffmpeg"),
	}
}

// Run executes ffmpeg with args. On failure the tail of stderr is included in
// the error so the job record says something useful.
func (s *FFmpegService) Run(ctx context.Context, args []string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	cmd.Stderr = &stderr

	s.log.WithField("output", args[len(args)-1]).Debug("Running ffmpeg")

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String(), stderrTail))
	}
	return nil
}

type probeSideData struct {
	Rotation float64 `json:"rotation"`
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
		Tags      struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideDataList []probeSideData `json:"side_data_list"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe reads stream layout and duration with ffprobe.
func (s *FFmpegService) Probe(ctx context.Context, path string) (*render.MediaInfo, error) {
	args := []string{
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	cmd := exec.CommandContext(ctx, s.ffprobePath, args...)
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", path, err)
	}
	return parseProbe(output)
}

func parseProbe(data []byte) (*render.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &render.MediaInfo{Duration: parseSeconds(out.Format.Duration)}
	for _, st := range out.Streams {
		switch st.CodecType {
		case "video":
			if !info.HasVideo {
				info.HasVideo = true
				info.Width, info.Height = st.Width, st.Height
				// ffmpeg autorotates on decode, so report the displayed size.
				if quarterTurn(streamRotation(st.Tags.Rotate, st.SideDataList)) {
					info.Width, info.Height = st.Height, st.Width
				}
			}
			if info.Duration == 0 {
				info.Duration = parseSeconds(st.Duration)
			}
		case "audio":
			info.HasAudio = true
		}
	}
	if !info.HasVideo && !info.HasAudio {
		return nil, fmt.Errorf("no decodable streams")
	}
	return info, nil
}

// streamRotation prefers the display matrix over the legacy rotate tag.
func streamRotation(tag string, sideData []probeSideData) int {
	for _, sd := range sideData {
		if sd.Rotation != 0 {
			return int(math.Round(sd.Rotation))
		}
	}
	if r, err := strconv.Atoi(strings.TrimSpace(tag)); err == nil {
		return r
	}
	return 0
}

func quarterTurn(degrees int) bool {
	d := ((degrees % 360) + 360) % 360
	return d == 90 || d == 270
}

// parseSeconds treats "N/A" and garbage as zero.
func parseSeconds(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f < 0 {
		return 0
	}
	return f
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
