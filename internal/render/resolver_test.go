package render

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/bobarin/reelforge/internal/models"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestClampWindow(t *testing.T) {
	tests := []struct {
		name            string
		start, end, src float64
		wantStart       float64
		wantDur         float64
		wantErr         bool
	}{
		{name: "in bounds", start: 1, end: 4, src: 10, wantStart: 1, wantDur: 3},
		{name: "negative start clamps to zero", start: -2, end: 3, src: 10, wantStart: 0, wantDur: 3},
		{name: "end past source clamps", start: 7, end: 20, src: 10, wantStart: 7, wantDur: 3},
		{name: "end equals start is invalid", start: 5, end: 5, src: 10, wantErr: true},
		{name: "end before start is invalid", start: 5, end: 4, src: 10, wantErr: true},
		{name: "start past source is invalid", start: 12, end: 15, src: 10, wantErr: true},
		{name: "short window extends forward", start: 1, end: 1.5, src: 10, wantStart: 1, wantDur: 2},
		{name: "short window at tail pulls start back", start: 9.5, end: 10, src: 10, wantStart: 8, wantDur: 2},
		{name: "source shorter than minimum used whole", start: 0.5, end: 1, src: 1.5, wantStart: 0, wantDur: 1.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, dur, err := clampWindow(tt.start, tt.end, tt.src)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got start=%v dur=%v", start, dur)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !approx(start, tt.wantStart) || !approx(dur, tt.wantDur) {
				t.Errorf("clampWindow = (%v, %v), want (%v, %v)", start, dur, tt.wantStart, tt.wantDur)
			}
		})
	}
}

func TestResolveScenes(t *testing.T) {
	prober := fakeProber{
		"/m/long.mp4":  {Duration: 10, Width: 1920, Height: 1080, HasVideo: true, HasAudio: true},
		"/m/photo.jpg": {Width: 4000, Height: 3000, HasVideo: true},
		"/m/broll.mp4": {Duration: 1.5, Width: 1280, Height: 720, HasVideo: true},
		"/m/mute.mp3":  {Duration: 30, HasAudio: true},
	}
	media := map[string]string{
		"long.mp4":  "/m/long.mp4",
		"photo.jpg": "/m/photo.jpg",
		"beach":     "/m/broll.mp4",
		"song.mp3":  "/m/mute.mp3",
		"bad.mp4":   "/m/corrupt.mp4",
	}

	sb := &models.Storyboard{Scenes: []models.Scene{
		{InputType: models.InputUserClip, FilePath: "long.mp4", Start: 0, End: 3},
		{InputType: models.InputUserImage, FilePath: "photo.jpg"},
		{InputType: models.InputAIBroll, BRollKeyword: "beach", Duration: 4},
		{InputType: models.InputUserClip, FilePath: "missing.mp4", Start: 0, End: 3},
		{InputType: models.InputUserClip, FilePath: "bad.mp4", Start: 0, End: 3},
		{InputType: models.InputUserClip, FilePath: "song.mp3", Start: 0, End: 3},
		{InputType: models.InputAIBroll, BRollKeyword: "mountains"},
		{InputType: "hologram", FilePath: "long.mp4"},
	}}

	valid, rejected := NewResolver(prober, false).Resolve(context.Background(), sb, media)

	if len(valid) != 3 {
		t.Fatalf("expected 3 valid scenes, got %d (rejected: %v)", len(valid), rejected)
	}
	if len(rejected) != 5 {
		t.Fatalf("expected 5 rejections, got %d: %v", len(rejected), rejected)
	}

	if valid[0].kind != sourceVideo || !approx(valid[0].Duration, 3) {
		t.Errorf("clip scene resolved to %+v", valid[0])
	}
	if valid[1].kind != sourceImage || !approx(valid[1].Duration, models.DefaultImageSeconds) {
		t.Errorf("image scene should default to %.1fs, got %+v", models.DefaultImageSeconds, valid[1])
	}
	if valid[2].kind != sourceVideo || !approx(valid[2].Duration, 1.5) {
		t.Errorf("b-roll should clamp to its 1.5s source, got %+v", valid[2])
	}

	wantIdx := []int{3, 4, 5, 6, 7}
	for i, rej := range rejected {
		if rej.Index != wantIdx[i] {
			t.Errorf("rejection %d has index %d, want %d", i, rej.Index, wantIdx[i])
		}
	}
	if !strings.Contains(rejected[0].Reason, "not resolved") {
		t.Errorf("missing media reason = %q", rejected[0].Reason)
	}
	if !strings.Contains(rejected[1].Reason, "undecodable") {
		t.Errorf("corrupt media reason = %q", rejected[1].Reason)
	}
}

func TestResolvePlaceholderBroll(t *testing.T) {
	sb := &models.Storyboard{Scenes: []models.Scene{
		{InputType: models.InputAIBroll, BRollKeyword: "city at night"},
	}}

	valid, rejected := NewResolver(fakeProber{}, true).Resolve(context.Background(), sb, nil)
	if len(rejected) != 0 || len(valid) != 1 {
		t.Fatalf("expected placeholder scene, got valid=%v rejected=%v", valid, rejected)
	}
	if valid[0].kind != sourcePlaceholder || !approx(valid[0].Duration, models.DefaultImageSeconds) {
		t.Errorf("unexpected placeholder scene %+v", valid[0])
	}
}
