package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bobarin/reelforge/internal/render"
	"gopkg.in/yaml.v3"
)

// MusicLibrary maps style labels to tracks in a music directory. The
// optional YAML file looks like:
//
//	default: upbeat.mp3
//	tracks:
//	  funny: quirky.mp3
//	  dramatic: epic.mp3
//
// Styles with no entry use the default, then the first audio file in the
// directory.
type MusicLibrary struct {
	dir     string
	Default string            `yaml:"default"`
	Tracks  map[string]string `yaml:"tracks"`
}

var _ render.MusicSource = (*MusicLibrary)(nil)

var audioExts = map[string]bool{".mp3": true, ".m4a": true, ".aac": true, ".wav": true, ".ogg": true}

// LoadMusicLibrary reads libraryPath when set; an empty path yields a
// directory-only library.
func LoadMusicLibrary(dir, libraryPath string) (*MusicLibrary, error) {
	lib := &MusicLibrary{}
	if libraryPath != "" {
		data, err := os.ReadFile(libraryPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read music library: %w", err)
		}
		if err := yaml.Unmarshal(data, lib); err != nil {
			return nil, fmt.Errorf("failed to parse music library: %w", err)
		}
	}
	lib.dir = dir

	normalized := make(map[string]string, len(lib.Tracks))
	for style, file := range lib.Tracks {
		normalized[strings.ToLower(strings.TrimSpace(style))] = file
	}
	lib.Tracks = normalized
	return lib, nil
}

func (l *MusicLibrary) Track(style string) (string, bool) {
	if file, ok := l.Tracks[strings.ToLower(strings.TrimSpace(style))]; ok {
		if p, ok := l.existing(file); ok {
			return p, true
		}
	}
	if l.Default != "" {
		if p, ok := l.existing(l.Default); ok {
			return p, true
		}
	}
	return l.firstInDir()
}

func (l *MusicLibrary) existing(file string) (string, bool) {
	p := file
	if !filepath.IsAbs(p) {
		p = filepath.Join(l.dir, file)
	}
	if info, err := os.Stat(p); err == nil && !info.IsDir() {
		return p, true
	}
	return "", false
}

func (l *MusicLibrary) firstInDir() (string, bool) {
	if l.dir == "" {
		return "", false
	}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return "", false
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && audioExts[strings.ToLower(filepath.Ext(e.Name()))] {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", false
	}
	sort.Strings(names)
	return filepath.Join(l.dir, names[0]), true
}
