// Package pipeline wires the per-frame flow: brightness stats, EMA smoothing,
// the rate-gated auto-tune controller, and the gamma/CLAHE transforms.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tidbots/image-preprocess/internal/domain/model"
	"github.com/tidbots/image-preprocess/internal/metrics"
	"github.com/tidbots/image-preprocess/internal/pipeline/imgproc"
	"github.com/tidbots/image-preprocess/internal/pipeline/stats"
	"github.com/tidbots/image-preprocess/internal/pipeline/tuner"
	"github.com/tidbots/image-preprocess/internal/store"
	"github.com/tidbots/image-preprocess/internal/tracing"
)

const (
	skipReasonInvalidFrame = "invalid_frame"

	// How long a background checkpoint write may take before it is abandoned.
	checkpointSaveTimeout = 2 * time.Second
)

// Config describes one stream's pipeline.
type Config struct {
	Stream string

	// Boot operating point, clamped into the tuning bounds at construction.
	Boot model.TuningParameters

	// Fixed CLAHE tile grid (not auto-tuned).
	Grid int

	// SatThr/DarkThr are the luma thresholds feeding the stats ratios.
	SatThr  uint8
	DarkThr uint8

	DebugOverlay bool

	// EMAAlpha is the smoothing weight feeding the controller.
	EMAAlpha float64

	Tuning tuner.Config
}

// FrameSource supplies frames to Run. Next returns io.EOF when the source is
// exhausted.
type FrameSource interface {
	Next(ctx context.Context) (*model.Frame, error)
}

// Sink consumes transformed frames and their diagnostics.
type Sink interface {
	Emit(ctx context.Context, f *model.Frame, d Diagnostics) error
}

// Diagnostics is the per-frame output for telemetry and debug consumers.
type Diagnostics struct {
	Raw      model.BrightnessStats
	Smoothed model.BrightnessStats
	Params   model.ParameterSnapshot
	Tune     tuner.Diagnostics

	// Debug carries the overlay-annotated frame when enabled.
	Debug *image.RGBA
}

// Pipeline owns all mutable controller state for one stream. ProcessFrame is
// the single writer of that state; concurrent readers get version-stamped
// snapshots via Snapshot.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
	tracer trace.Tracer

	computer stats.Computer
	smoother *tuner.Smoother
	ctrl     *tuner.Controller

	mu       sync.RWMutex
	snapshot model.ParameterSnapshot

	// Committed changes are logged at most once per second.
	commitLog *rate.Limiter

	checkpoints store.CheckpointStore
	persistCh   chan store.Checkpoint

	inbox *Inbox
}

// Option customizes a Pipeline.
type Option func(*options)

type options struct {
	tunerOpts []tuner.Option
}

// WithTunerClock overrides the controller's wall-clock source, for
// deterministic tests of the interval gate.
func WithTunerClock(now func() time.Time) Option {
	return func(o *options) { o.tunerOpts = append(o.tunerOpts, tuner.WithClock(now)) }
}

// New builds a pipeline. seed, when non-nil, warm-starts the operating point
// from a persisted checkpoint (bounded to one step from the boot point).
// checkpoints may be nil to disable persistence.
func New(cfg Config, checkpoints store.CheckpointStore, seed *model.TuningParameters, logger *slog.Logger, opts ...Option) *Pipeline {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	ctrl := tuner.NewWithSeed(cfg.Boot, cfg.Tuning, seed, o.tunerOpts...)
	boot := ctrl.Params()

	p := &Pipeline{
		cfg:         cfg,
		logger:      logger.With("component", "pipeline", "stream", cfg.Stream),
		tracer:      tracing.Tracer("preprocess/pipeline"),
		computer:    stats.NewComputer(cfg.SatThr, cfg.DarkThr),
		smoother:    tuner.NewSmoother(cfg.EMAAlpha),
		ctrl:        ctrl,
		snapshot:    model.ParameterSnapshot{TuningParameters: boot},
		commitLog:   rate.NewLimiter(rate.Every(time.Second), 1),
		checkpoints: checkpoints,
		persistCh:   make(chan store.Checkpoint, 4),
		inbox:       NewInbox(),
	}

	metrics.GammaCurrent.WithLabelValues(cfg.Stream).Set(boot.Gamma)
	metrics.CLAHEClipCurrent.WithLabelValues(cfg.Stream).Set(boot.CLAHEClip)
	return p
}

// Snapshot returns the current operating point with its version stamp.
func (p *Pipeline) Snapshot() model.ParameterSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// ProcessFrame runs one frame end to end: stats, EMA update, rate-gated tune
// tick, transform. It returns ErrInvalidFrame (wrapped) for unusable frames;
// the frame is skipped and no output exists for it. ProcessFrame must not be
// called concurrently; the controller state is single-writer.
func (p *Pipeline) ProcessFrame(ctx context.Context, f *model.Frame) (*model.Frame, Diagnostics, error) {
	_, span := p.tracer.Start(ctx, "preprocess.frame")
	defer span.End()

	statsStart := time.Now()
	raw, err := p.computer.Compute(f)
	if err != nil {
		metrics.FramesSkippedTotal.WithLabelValues(p.cfg.Stream, skipReasonInvalidFrame).Inc()
		p.logger.Warn("skipping frame", "error", err, "seq", frameSeq(f))
		return nil, Diagnostics{}, fmt.Errorf("compute stats: %w", err)
	}
	metrics.StageLatency.WithLabelValues(p.cfg.Stream, "stats").Observe(time.Since(statsStart).Seconds())

	// EMA before the gate: the controller sees this frame's contribution.
	smoothed := p.smoother.Observe(raw)
	metrics.SmoothedMean.WithLabelValues(p.cfg.Stream).Set(smoothed.Mean)
	metrics.SmoothedStd.WithLabelValues(p.cfg.Stream).Set(smoothed.Std)
	metrics.SmoothedSatRatio.WithLabelValues(p.cfg.Stream).Set(smoothed.SatRatio)
	metrics.SmoothedDarkRatio.WithLabelValues(p.cfg.Stream).Set(smoothed.DarkRatio)

	tuneStart := time.Now()
	params, td := p.ctrl.Tick(smoothed)
	metrics.StageLatency.WithLabelValues(p.cfg.Stream, "tune").Observe(time.Since(tuneStart).Seconds())
	metrics.TuneTicksTotal.WithLabelValues(p.cfg.Stream, td.Decision).Inc()

	if td.Committed {
		p.commit(params, smoothed, td)
	}

	transformStart := time.Now()
	out := imgproc.ApplyGamma(f.Img, params.Gamma)
	out = imgproc.ApplyCLAHE(out, params.CLAHEClip, p.cfg.Grid)
	metrics.StageLatency.WithLabelValues(p.cfg.Stream, "transform").Observe(time.Since(transformStart).Seconds())

	span.SetAttributes(
		attribute.Float64("preprocess.gamma", params.Gamma),
		attribute.Float64("preprocess.clahe_clip", params.CLAHEClip),
		attribute.String("preprocess.decision", td.Decision),
	)

	diag := Diagnostics{
		Raw:      raw,
		Smoothed: smoothed,
		Params:   p.Snapshot(),
		Tune:     td,
	}
	if p.cfg.DebugOverlay {
		diag.Debug = imgproc.DrawOverlay(out, params, p.cfg.Grid, smoothed)
	}

	metrics.FramesProcessedTotal.WithLabelValues(p.cfg.Stream).Inc()
	return f.WithImage(out), diag, nil
}

// commit publishes a committed parameter change: snapshot, gauges, throttled
// log, and an asynchronous checkpoint write (never blocking the hot path).
func (p *Pipeline) commit(params model.TuningParameters, smoothed model.BrightnessStats, td tuner.Diagnostics) {
	p.mu.Lock()
	p.snapshot = model.ParameterSnapshot{
		TuningParameters: params,
		Version:          p.snapshot.Version + 1,
	}
	p.mu.Unlock()

	metrics.TuneCommitsTotal.WithLabelValues(p.cfg.Stream).Inc()
	metrics.GammaCurrent.WithLabelValues(p.cfg.Stream).Set(params.Gamma)
	metrics.CLAHEClipCurrent.WithLabelValues(p.cfg.Stream).Set(params.CLAHEClip)

	if p.commitLog.Allow() {
		p.logger.Info("auto_tune committed",
			"gamma", params.Gamma,
			"clahe", params.CLAHEClip,
			"signal", td.Signal,
			"contrast", td.ContrastAction,
			"mean", smoothed.Mean,
			"std", smoothed.Std,
			"sat", smoothed.SatRatio,
			"dark", smoothed.DarkRatio,
		)
	}

	if p.checkpoints == nil {
		return
	}
	cp := store.Checkpoint{Stream: p.cfg.Stream, Params: params, UpdatedAt: time.Now()}
	select {
	case p.persistCh <- cp:
	default:
		// Persister is behind; newer commits supersede this one anyway.
		metrics.CheckpointSavesTotal.WithLabelValues(p.cfg.Stream, "dropped").Inc()
	}
}

// Inbox exposes the depth-1 input buffer so external transports can push
// frames directly.
func (p *Pipeline) Inbox() *Inbox {
	return p.inbox
}

// Run pumps frames from src through ProcessFrame into snk until the source
// is exhausted or the context is cancelled. The ingest, process and persist
// loops run as separate goroutines; controller state stays single-writer
// because only the process loop touches it.
func (p *Pipeline) Run(ctx context.Context, src FrameSource, snk Sink) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer p.inbox.Close()
		for {
			f, err := src.Next(gCtx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("frame source: %w", err)
			}
			if p.inbox.Put(f) {
				metrics.FramesDroppedTotal.WithLabelValues(p.cfg.Stream).Inc()
			}
		}
	})

	g.Go(func() error {
		for {
			f, ok := p.inbox.Next(gCtx)
			if !ok {
				return nil
			}
			out, diag, err := p.ProcessFrame(gCtx, f)
			if err != nil {
				// Invalid frames are local, non-fatal: skip and continue.
				continue
			}
			if snk == nil {
				continue
			}
			if err := snk.Emit(gCtx, out, diag); err != nil {
				return fmt.Errorf("emit frame seq=%d: %w", out.Seq, err)
			}
		}
	})

	// The persister outlives the errgroup so a clean EOF shutdown still
	// flushes the newest pending checkpoint.
	persistCtx, stopPersist := context.WithCancel(context.Background())
	persistDone := make(chan struct{})
	if p.checkpoints != nil {
		go func() {
			defer close(persistDone)
			p.runPersister(persistCtx)
		}()
	} else {
		close(persistDone)
	}

	err := g.Wait()
	stopPersist()
	<-persistDone

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (p *Pipeline) runPersister(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.flushCheckpoints()
			return
		case cp := <-p.persistCh:
			p.saveCheckpoint(cp)
		}
	}
}

// flushCheckpoints writes the newest pending checkpoint, if any, during
// shutdown. Older pending writes are superseded and skipped.
func (p *Pipeline) flushCheckpoints() {
	var last *store.Checkpoint
	for {
		select {
		case cp := <-p.persistCh:
			last = &cp
		default:
			if last != nil {
				p.saveCheckpoint(*last)
			}
			return
		}
	}
}

func (p *Pipeline) saveCheckpoint(cp store.Checkpoint) {
	ctx, cancel := context.WithTimeout(context.Background(), checkpointSaveTimeout)
	defer cancel()
	if err := p.checkpoints.Save(ctx, cp); err != nil {
		metrics.CheckpointSavesTotal.WithLabelValues(p.cfg.Stream, "error").Inc()
		p.logger.Warn("checkpoint save failed", "error", err)
		return
	}
	metrics.CheckpointSavesTotal.WithLabelValues(p.cfg.Stream, "ok").Inc()
}

func frameSeq(f *model.Frame) uint64 {
	if f == nil {
		return 0
	}
	return f.Seq
}
