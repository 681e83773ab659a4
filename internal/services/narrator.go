package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bobarin/reelforge/internal/render"
	"github.com/google/uuid"
)

// Narrator writes TTS output to uniquely named files in a shared directory so
// concurrent jobs never collide.
type Narrator struct {
	tts TTSService
	dir string
}

var _ render.Narrator = (*Narrator)(nil)

func NewNarrator(tts TTSService, dir string) (*Narrator, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create narration dir: %w", err)
	}
	return &Narrator{tts: tts, dir: dir}, nil
}

// Narrate synthesizes text and returns the path of the new audio file. The
// caller owns the file.
func (n *Narrator) Narrate(ctx context.Context, jobID, text string) (string, error) {
	resp, err := n.tts.GenerateSpeech(ctx, text)
	if err != nil {
		return "", err
	}

	format := resp.Format
	if format == "" {
		format = "mp3"
	}
	path := filepath.Join(n.dir, fmt.Sprintf("narration_%s_%s.%s", jobID, uuid.NewString(), format))
	if err := os.WriteFile(path, resp.AudioData, 0644); err != nil {
		return "", fmt.Errorf("failed to write narration: %w", err)
	}
	return path, nil
}
