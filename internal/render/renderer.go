package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/sirupsen/logrus"
)

// Options are the renderer's filesystem and encoding settings.
type Options struct {
	TempDir          string
	OutputDir        string
	FPS              int
	PlaceholderBroll bool // substitute a color card for unresolved b-roll
}

// Dependencies are the renderer's collaborators. Narrator, Music and
// Publisher are optional.
type Dependencies struct {
	Runner    Runner
	Prober    Prober
	Narrator  Narrator
	Music     MusicSource
	Publisher Publisher
	Sink      StatusSink
	Log       logrus.FieldLogger
}

// Request is a single render job.
type Request struct {
	JobID      string
	Storyboard *models.Storyboard
	Media      map[string]string // scene reference -> local path
}

// Result describes a successful render.
type Result struct {
	JobID      string          `json:"job_id"`
	OutputPath string          `json:"output_path"`
	Location   string          `json:"location"`
	Duration   float64         `json:"duration"`
	Clips      []Clip          `json:"clips"`
	Rejected   []Rejection     `json:"rejected,omitempty"`
	Features   []FeatureResult `json:"features,omitempty"`
}

// Unavailable lists the optional stages that were skipped.
func (r *Result) Unavailable() []FeatureResult {
	var out []FeatureResult
	for _, f := range r.Features {
		if !f.Applied {
			out = append(out, f)
		}
	}
	return out
}

type Renderer struct {
	opts      Options
	resolver  *Resolver
	builder   *ClipBuilder
	overlay   *OverlayComposer
	assembler *Assembler
	publisher Publisher
	sink      StatusSink
	log       logrus.FieldLogger
}

func New(opts Options, deps Dependencies) *Renderer {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	log := deps.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "render")

	return &Renderer{
		opts:      opts,
		resolver:  NewResolver(deps.Prober, opts.PlaceholderBroll),
		builder:   NewClipBuilder(deps.Runner, opts.FPS),
		overlay:   NewOverlayComposer(deps.Runner, deps.Narrator, log),
		assembler: NewAssembler(deps.Runner, deps.Music, opts.OutputDir, log),
		publisher: deps.Publisher,
		sink:      deps.Sink,
		log:       log,
	}
}

// Render produces one MP4 for req and always leaves the job in a terminal
// state: completed with a location, or failed with a message. Panics inside
// the pipeline are converted to failures.
func (r *Renderer) Render(ctx context.Context, req Request) (res *Result, err error) {
	log := r.log.WithField("job_id", req.JobID)
	started := time.Now()

	defer func() {
		if p := recover(); p != nil {
			res, err = nil, fmt.Errorf("render panicked: %v", p)
		}
		if err != nil {
			log.WithError(err).Error("Render failed")
			r.fail(ctx, req.JobID, err)
		}
	}()

	if req.JobID == "" {
		return nil, fmt.Errorf("job id is required")
	}
	if req.Storyboard == nil {
		return nil, fmt.Errorf("storyboard is required")
	}

	res, err = r.render(ctx, req, log)
	if err != nil {
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"clips":    len(res.Clips),
		"duration": res.Duration,
		"elapsed":  time.Since(started).Round(time.Millisecond).String(),
	}).Info("Render completed")
	return res, nil
}

func (r *Renderer) render(ctx context.Context, req Request, log logrus.FieldLogger) (*Result, error) {
	sb := req.Storyboard
	r.progress(ctx, log, req.JobID, progressStarted, StageStarted)

	scope, err := newJobScope(r.opts.TempDir, req.JobID)
	if err != nil {
		return nil, err
	}
	defer scope.Release()

	scenes, rejected := r.resolver.Resolve(ctx, sb, req.Media)
	for _, rej := range rejected {
		log.WithFields(logrus.Fields{"scene": rej.Index, "reason": rej.Reason}).Warn("Skipping invalid scene")
	}
	if len(scenes) == 0 {
		return nil, ErrNoValidScenes
	}
	r.progress(ctx, log, req.JobID, progressMediaReady, StageMediaReady)

	frame := FrameFor(sb.Aspect())
	res := &Result{JobID: req.JobID, Rejected: rejected}

	for n, rs := range scenes {
		clip, err := r.builder.Build(ctx, rs, frame, scope.path(fmt.Sprintf("scene_%03d.mp4", rs.Index)))
		if err != nil {
			log.WithFields(logrus.Fields{"scene": rs.Index, "reason": err.Error()}).Warn("Skipping scene that failed to build")
			res.Rejected = append(res.Rejected, Rejection{Index: rs.Index, Reason: err.Error()})
			continue
		}

		if clip.Scene.Caption != "" {
			var fr FeatureResult
			clip, fr = r.overlay.Caption(ctx, scope, clip)
			res.Features = append(res.Features, fr)
		}
		if sb.UseVoiceover {
			var fr FeatureResult
			clip, fr = r.overlay.Voiceover(ctx, scope, clip)
			res.Features = append(res.Features, fr)
		}

		res.Clips = append(res.Clips, clip)
		r.progress(ctx, log, req.JobID, composeProgress(n+1, len(scenes)), StageComposing)
	}

	if len(res.Clips) == 0 {
		return nil, fmt.Errorf("%w: every scene failed to build", ErrNoValidScenes)
	}

	r.progress(ctx, log, req.JobID, progressEncoding, StageEncoding)
	assembly, err := r.assembler.Assemble(ctx, scope, res.Clips, sb)
	if err != nil {
		return nil, err
	}
	if sb.UseMusic {
		res.Features = append(res.Features, assembly.Music)
	}
	res.OutputPath = assembly.Path
	res.Duration = assembly.Duration

	location := assembly.Path
	if r.publisher != nil {
		location, err = r.publisher.Publish(ctx, req.JobID, assembly.Path)
		if err != nil {
			os.Remove(assembly.Path)
			return nil, fmt.Errorf("failed to publish output: %w", err)
		}
	}
	res.Location = location

	if r.sink != nil {
		if err := r.complete(ctx, log, req.JobID, location); err != nil {
			return nil, fmt.Errorf("failed to record job completion: %w", err)
		}
	}
	return res, nil
}

// complete retries the terminal write once so a transient store error does
// not leave the job stuck in processing.
func (r *Renderer) complete(ctx context.Context, log logrus.FieldLogger, jobID, location string) error {
	ctx = context.WithoutCancel(ctx)
	err := r.sink.Complete(ctx, jobID, location)
	if err == nil {
		return nil
	}
	log.WithError(err).Warn("Failed to record job completion, retrying")
	return r.sink.Complete(ctx, jobID, location)
}

func (r *Renderer) progress(ctx context.Context, log logrus.FieldLogger, jobID string, pct int, stage Stage) {
	if r.sink == nil {
		return
	}
	if err := r.sink.Progress(ctx, jobID, pct, stage); err != nil {
		log.WithError(err).Warn("Failed to record job progress")
	}
}

func (r *Renderer) fail(ctx context.Context, jobID string, cause error) {
	if r.sink == nil || jobID == "" {
		return
	}
	msg := cause.Error()
	if errors.Is(cause, ErrNoValidScenes) {
		msg = ErrNoValidScenes.Error()
	}
	// The caller's context may already be cancelled; the failure still has to land.
	if err := r.sink.Fail(context.WithoutCancel(ctx), jobID, msg); err != nil {
		r.log.WithError(err).WithField("job_id", jobID).Error("Failed to record job failure")
	}
}
