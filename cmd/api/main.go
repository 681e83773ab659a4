package main

import (
	"context"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/bobarin/reelforge/internal/api"
	"github.com/bobarin/reelforge/internal/config"
	"github.com/bobarin/reelforge/internal/render"
	"github.com/bobarin/reelforge/internal/services"
	"github.com/bobarin/reelforge/internal/storage"
	"github.com/bobarin/reelforge/internal/store"
	"github.com/bobarin/reelforge/internal/worker"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}
	log := config.NewLogger(cfg.LogLevel, cfg.LogFormat)
	log.Info("Starting reelforge API...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	jobs, err := openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to open job store")
	}
	defer jobs.Close()
	log.WithField("backend", cfg.StoreBackend).Info("Job store ready")

	// Supabase Storage is optional; without it only local media is usable.
	var stor *storage.Storage
	if cfg.SupabaseConfigured() {
		stor = storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket, log)
		log.WithField("bucket", cfg.SupabaseStorageBucket).Info("Initialized Supabase storage")
	}

	var publisher render.Publisher = storage.NewLocalPublisher(cfg.PublicBaseURL)
	if cfg.PublishToStorage {
		publisher = storage.NewBucketPublisher(stor, "renders")
		log.Info("Finished reels will be uploaded to storage")
	}

	ffmpegSvc := services.NewFFmpegService(cfg.FFmpegPath, cfg.FFprobePath, log)

	music, err := config.LoadMusicLibrary(cfg.MusicDir, cfg.MusicLibraryPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load music library")
	}

	// TTS provider: ElevenLabs preferred, OpenAI as fallback, none disables voiceover.
	var tts services.TTSService
	switch {
	case cfg.ElevenLabsKey != "":
		tts = services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID, log)
		log.WithField("voice", cfg.ElevenLabsVoiceID).Info("TTS provider: ElevenLabs")
	case cfg.OpenAIKey != "":
		tts = services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel, log)
		log.Info("TTS provider: OpenAI")
	default:
		log.Warn("No TTS provider configured, voiceover will be unavailable")
	}

	var narrator render.Narrator
	if tts != nil {
		n, err := services.NewNarrator(tts, cfg.NarrationTempDir)
		if err != nil {
			log.WithError(err).Fatal("Failed to initialize narrator")
		}
		narrator = n
	}

	var analyzer services.Analyzer
	var geminiSvc *services.GeminiService
	if cfg.GeminiKey != "" {
		geminiSvc = services.NewGeminiService(cfg.GeminiKey, cfg.GeminiModel, log)
		analyzer = geminiSvc
	} else {
		log.Warn("GEMINI_API_KEY not set, storyboards will use the fallback planner")
	}

	var broll services.BrollGenerator
	if cfg.VeoEnabled {
		broll = services.NewVeoService(cfg.GeminiKey, cfg.VeoModel, log)
		log.WithField("model", cfg.VeoModel).Info("Veo b-roll generation enabled")
	}

	var editModel services.StoryboardEditor
	switch {
	case cfg.OpenAIKey != "":
		editModel = services.NewOpenAIService(cfg.OpenAIKey, cfg.OpenAIModel, log)
	case geminiSvc != nil:
		editModel = geminiSvc
	default:
		log.Warn("No chat edit model configured")
	}

	planner := services.NewPlanner(analyzer, ffmpegSvc, broll, cfg.BrollDir, log)
	editor := services.NewChatEditor(editModel, log)
	sink := store.NewSink(jobs)

	renderer := render.New(render.Options{
		TempDir:          cfg.RenderTempDir,
		OutputDir:        cfg.OutputDir,
		FPS:              cfg.RenderFPS,
		PlaceholderBroll: cfg.BrollPlaceholder,
	}, render.Dependencies{
		Runner:    ffmpegSvc,
		Prober:    ffmpegSvc,
		Narrator:  narrator,
		Music:     music,
		Publisher: publisher,
		Sink:      sink,
		Log:       log,
	})

	var downloader worker.Downloader
	if stor != nil {
		downloader = stor
	}
	mediaRoots := append([]string{cfg.BrollDir}, cfg.MediaRoots...)
	media := worker.NewMediaResolver(downloader, filepath.Join(cfg.RenderTempDir, "inputs"), mediaRoots, log)
	w := worker.New(renderer, media, sink, cfg.MaxConcurrentJobs, cfg.WorkerQueueSize, log)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	if cfg.WorkerEnabled {
		w.Start(workerCtx)
	} else {
		log.Warn("Worker disabled, render requests will be rejected")
	}

	handler := api.NewHandler(jobs, planner, editor, w, log)
	router := api.NewRouter(handler, api.RouterConfig{
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
		OutputDir:          cfg.OutputDir,
	}, log)

	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.APIPort).Info("API server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server error")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// In-flight renders finish; queued ones are dropped.
	workerCancel()
	if cfg.WorkerEnabled {
		w.Wait()
	}

	log.Info("Server exited")
}

func openStore(ctx context.Context, cfg *config.Config) (store.JobStore, error) {
	switch cfg.StoreBackend {
	case config.StorePostgres:
		return store.NewPostgres(ctx, cfg.DatabaseURL)
	case config.StoreRedis:
		return store.NewRedis(ctx, cfg.RedisURL)
	case config.StoreSupabase:
		return store.NewPostgREST(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseJobsTable)
	default:
		return store.NewMemory(), nil
	}
}
