package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/tidbots/image-preprocess/internal/config"
	"github.com/tidbots/image-preprocess/internal/domain/model"
	"github.com/tidbots/image-preprocess/internal/pipeline"
	"github.com/tidbots/image-preprocess/internal/pipeline/tuner"
	"github.com/tidbots/image-preprocess/internal/sink"
	"github.com/tidbots/image-preprocess/internal/source"
	"github.com/tidbots/image-preprocess/internal/store"
	redisstore "github.com/tidbots/image-preprocess/internal/store/redis"
	"github.com/tidbots/image-preprocess/internal/tracing"
)

const checkpointLoadTimeout = 3 * time.Second

func main() {
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting preprocessd",
		"stream", cfg.Stream,
		"source_kind", cfg.Source.Kind,
		"source_fps", cfg.Source.FPS,
		"gamma", cfg.Preprocess.Gamma,
		"clahe_clip", cfg.Preprocess.CLAHEClip,
		"clahe_grid", cfg.Preprocess.CLAHEGrid,
		"auto_tune", cfg.Tuning.Enabled,
		"checkpointing", cfg.Checkpoint.Enabled,
		"debug_overlay", cfg.Preprocess.DebugOverlay,
	)

	// Initialize OpenTelemetry tracing
	tracingEndpoint := ""
	if cfg.Tracing.Enabled {
		tracingEndpoint = cfg.Tracing.Endpoint
	}
	shutdownTracing, err := tracing.Init(context.Background(), "preprocessd", tracingEndpoint, cfg.Tracing.Insecure)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()
	if cfg.Tracing.Enabled {
		logger.Info("tracing enabled", "endpoint", cfg.Tracing.Endpoint)
	}

	checkpoints, err := buildCheckpointStore(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize checkpoint store", "error", err, "redis_url", cfg.Checkpoint.RedisURL)
		os.Exit(1)
	}
	if checkpoints != nil {
		defer checkpoints.Close()
	}

	seed := loadSeed(checkpoints, cfg.Stream, logger)

	p := pipeline.New(pipelineConfig(cfg), checkpoints, seed, logger.With("stream", cfg.Stream))

	src, err := buildSource(cfg)
	if err != nil {
		logger.Error("failed to initialize frame source", "error", err)
		os.Exit(1)
	}
	snk, err := buildSink(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize frame sink", "error", err)
		os.Exit(1)
	}

	// Context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// Health check server
	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, logger)
	})

	g.Go(func() error {
		return p.Run(gCtx, src, snk)
	})

	// Signal handler
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("preprocessd exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("preprocessd shut down gracefully")
}

func pipelineConfig(cfg *config.Config) pipeline.Config {
	t := cfg.Tuning
	return pipeline.Config{
		Stream: cfg.Stream,
		Boot: model.TuningParameters{
			Gamma:     cfg.Preprocess.Gamma,
			CLAHEClip: cfg.Preprocess.CLAHEClip,
		},
		Grid:         cfg.Preprocess.CLAHEGrid,
		SatThr:       uint8(t.SatThr),
		DarkThr:      uint8(t.DarkThr),
		DebugOverlay: cfg.Preprocess.DebugOverlay,
		EMAAlpha:     t.EMAAlpha,
		Tuning: tuner.Config{
			Enabled:            t.Enabled,
			DarkMeanThr:        t.DarkMeanThr,
			BrightMeanThr:      t.BrightMeanThr,
			LowContrastStdThr:  t.LowContrastStdThr,
			SatRatioThr:        t.SatRatioThr,
			DarkRatioThr:       t.DarkRatioThr,
			GammaStep:          t.GammaStep,
			GammaStepSaturated: t.GammaStepSaturated,
			CLAHEStep:          t.CLAHEStep,
			GammaMin:           t.GammaMin,
			GammaMax:           t.GammaMax,
			CLAHEMin:           t.CLAHEMin,
			CLAHEMax:           t.CLAHEMax,
			CLAHETarget:        t.CLAHETarget,
			UpdateEveryN:       t.UpdateEveryN,
			MinUpdateInterval:  t.MinUpdateInterval.Std(),
		},
	}
}

func buildCheckpointStore(cfg *config.Config, logger *slog.Logger) (store.CheckpointStore, error) {
	if !cfg.Checkpoint.Enabled {
		return nil, nil
	}
	cs, err := redisstore.NewCheckpointStore(cfg.Checkpoint.RedisURL)
	if err != nil {
		return nil, err
	}
	logger.Info("checkpoint store connected", "redis_url", cfg.Checkpoint.RedisURL)
	return cs, nil
}

// loadSeed fetches the last persisted operating point, if any. A missing or
// unreadable checkpoint is not fatal: the pipeline boots from config instead.
func loadSeed(checkpoints store.CheckpointStore, stream string, logger *slog.Logger) *model.TuningParameters {
	if checkpoints == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), checkpointLoadTimeout)
	defer cancel()

	cp, found, err := checkpoints.Load(ctx, stream)
	if err != nil {
		logger.Warn("checkpoint load failed, booting from config", "error", err)
		return nil
	}
	if !found {
		return nil
	}
	logger.Info("warm-starting from checkpoint",
		"gamma", cp.Params.Gamma,
		"clahe_clip", cp.Params.CLAHEClip,
		"updated_at", cp.UpdatedAt,
	)
	return &cp.Params
}

func buildSource(cfg *config.Config) (pipeline.FrameSource, error) {
	switch cfg.Source.Kind {
	case "dir":
		return source.NewDirSource(cfg.Stream, cfg.Source.Dir, cfg.Source.FPS, cfg.Source.Loop)
	case "synthetic":
		return source.NewSyntheticSource(cfg.Stream, cfg.Source.Width, cfg.Source.Height, cfg.Source.FPS), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", cfg.Source.Kind)
	}
}

func buildSink(cfg *config.Config, logger *slog.Logger) (pipeline.Sink, error) {
	if cfg.Output.Dir == "" {
		logger.Info("no output dir configured, discarding transformed frames")
		return sink.Discard{}, nil
	}
	return sink.NewDirSink(cfg.Output.Dir)
}

func runHealthServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
