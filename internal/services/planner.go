package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/bobarin/reelforge/internal/render"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Analyzer turns uploaded media into a storyboard.
type Analyzer interface {
	Analyze(ctx context.Context, req PlanRequest) (*models.Storyboard, error)
}

// BrollGenerator renders a clip for a keyword. Provider is the name scenes
// use to ask for it.
type BrollGenerator interface {
	Provider() string
	GenerateBroll(ctx context.Context, keyword string, aspect models.AspectRatio, outputPath string) error
}

// Planner produces storyboards. Analysis failures never reach the caller;
// they degrade to a heuristic cut of the first media item.
type Planner struct {
	analyzer Analyzer
	prober   render.Prober
	broll    BrollGenerator
	brollDir string
	log      logrus.FieldLogger
}

// NewPlanner accepts nil analyzer and broll to run without model access.
func NewPlanner(analyzer Analyzer, prober render.Prober, broll BrollGenerator, brollDir string, log logrus.FieldLogger) *Planner {
	return &Planner{
		analyzer: analyzer,
		prober:   prober,
		broll:    broll,
		brollDir: brollDir,
		log:      log.WithField("component", "planner"),
	}
}

func (p *Planner) Plan(ctx context.Context, req PlanRequest) (*models.Storyboard, error) {
	if len(req.MediaPaths) == 0 {
		return nil, fmt.Errorf("at least one media file is required")
	}

	var sb *models.Storyboard
	if p.analyzer != nil {
		var err error
		sb, err = p.analyzer.Analyze(ctx, req)
		if err != nil {
			p.log.WithError(err).Warn("Analysis failed, using fallback storyboard")
			sb = nil
		}
	}
	if sb == nil {
		sb = FallbackStoryboard(req, p.sourceDuration(ctx, req.MediaPaths[0]))
	}

	p.fillBroll(ctx, sb)
	return sb, nil
}

func (p *Planner) sourceDuration(ctx context.Context, path string) float64 {
	if p.prober == nil {
		return 0
	}
	info, err := p.prober.Probe(ctx, path)
	if err != nil {
		p.log.WithError(err).WithField("file", filepath.Base(path)).Debug("Could not probe fallback source")
		return 0
	}
	return info.Duration
}

// fillBroll generates footage for ai_broll scenes that have no file yet.
// A scene naming a provider other than the configured one is left alone.
// Scenes left without a file render as placeholders.
func (p *Planner) fillBroll(ctx context.Context, sb *models.Storyboard) {
	for i := range sb.Scenes {
		sc := &sb.Scenes[i]
		if sc.InputType != models.InputAIBroll || sc.FilePath != "" || sc.BRollKeyword == "" {
			continue
		}
		if p.broll == nil {
			continue
		}
		provider := p.broll.Provider()
		if sc.Provider != "" && !strings.EqualFold(sc.Provider, provider) {
			p.log.WithFields(logrus.Fields{
				"scene":      i,
				"requested":  sc.Provider,
				"configured": provider,
			}).Warn("B-roll provider not available, scene will use a placeholder")
			continue
		}
		if err := os.MkdirAll(p.brollDir, 0755); err != nil {
			p.log.WithError(err).Warn("Cannot create b-roll directory")
			return
		}

		out := filepath.Join(p.brollDir, fmt.Sprintf("broll_%s.mp4", uuid.NewString()))
		if err := p.broll.GenerateBroll(ctx, sc.BRollKeyword, sb.Aspect(), out); err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{
				"scene":   i,
				"keyword": sc.BRollKeyword,
			}).Warn("B-roll generation failed, scene will use a placeholder")
			continue
		}
		sc.FilePath = out
		sc.Provider = provider
	}
}
