package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobarin/reelforge/internal/models"
	"github.com/bobarin/reelforge/internal/render"
	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull = errors.New("render queue is full")
	ErrStopped   = errors.New("worker is not running")
)

// Renderer runs one render to completion.
type Renderer interface {
	Render(ctx context.Context, req render.Request) (*render.Result, error)
}

// Task is a queued render.
type Task struct {
	JobID      string
	Storyboard *models.Storyboard
	Media      map[string]string
}

// Worker runs renders in process with bounded concurrency. Jobs are not
// persisted: a restart drops anything still queued.
type Worker struct {
	renderer    Renderer
	media       *MediaResolver
	sink        render.StatusSink
	concurrency int
	log         logrus.FieldLogger

	mu    sync.RWMutex
	ctx   context.Context
	tasks chan Task
	wg    sync.WaitGroup
}

func New(renderer Renderer, media *MediaResolver, sink render.StatusSink, concurrency, queueSize int, log logrus.FieldLogger) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Worker{
		renderer:    renderer,
		media:       media,
		sink:        sink,
		concurrency: concurrency,
		tasks:       make(chan Task, queueSize),
		log:         log.WithField("component", "worker"),
	}
}

// Start launches the render goroutines. They exit once ctx is cancelled and
// the in-flight render returns.
func (w *Worker) Start(ctx context.Context) {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	w.log.WithField("concurrency", w.concurrency).Info("Worker started")
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.loop(ctx)
	}
}

// Wait blocks until every render goroutine has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
	w.log.Info("Worker stopped")
}

// Submit enqueues a render without blocking.
func (w *Worker) Submit(task Task) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.ctx == nil || w.ctx.Err() != nil {
		return ErrStopped
	}
	select {
	case w.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (w *Worker) loop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-w.tasks:
			// Renders are not cancelled mid-encode; shutdown waits for them.
			w.process(context.WithoutCancel(ctx), task)
		}
	}
}

func (w *Worker) process(ctx context.Context, task Task) {
	log := w.log.WithField("job_id", task.JobID)
	started := time.Now()

	defer func() {
		if p := recover(); p != nil {
			log.WithField("panic", fmt.Sprint(p)).Error("Render worker panicked")
			if w.sink != nil {
				w.sink.Fail(ctx, task.JobID, fmt.Sprintf("internal error: %v", p))
			}
		}
	}()

	media := task.Media
	if w.media != nil {
		var cleanup func()
		media, cleanup = w.media.Resolve(ctx, task.JobID, task.Storyboard, task.Media)
		defer cleanup()
	}

	res, err := w.renderer.Render(ctx, render.Request{
		JobID:      task.JobID,
		Storyboard: task.Storyboard,
		Media:      media,
	})
	if err != nil {
		log.WithError(err).Warn("Job failed")
		return
	}
	log.WithFields(logrus.Fields{
		"location": res.Location,
		"clips":    len(res.Clips),
		"elapsed":  time.Since(started).Round(time.Millisecond).String(),
	}).Info("Job completed")
}
