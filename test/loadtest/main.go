// Package main implements a load test harness for the preprocessing
// pipeline. It pushes synthetic frames through the full per-frame path
// (stats, auto-tune, gamma, CLAHE) on parallel streams and measures
// throughput and per-frame latency.
//
// Usage:
//
//	go run ./test/loadtest \
//	  -width 640 -height 480 \
//	  -streams 4 \
//	  -duration 30s \
//	  -grid 8 \
//	  -auto-tune
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tidbots/image-preprocess/internal/domain/model"
	"github.com/tidbots/image-preprocess/internal/pipeline"
	"github.com/tidbots/image-preprocess/internal/pipeline/tuner"
	"github.com/tidbots/image-preprocess/internal/source"
)

func main() {
	var (
		width       = flag.Int("width", 640, "Synthetic frame width")
		height      = flag.Int("height", 480, "Synthetic frame height")
		streams     = flag.Int("streams", 4, "Number of parallel pipeline streams")
		duration    = flag.Duration("duration", 30*time.Second, "Test duration")
		grid        = flag.Int("grid", 8, "CLAHE tile grid")
		autoTune    = flag.Bool("auto-tune", true, "Enable the auto-tune controller")
		debugOutput = flag.Bool("log-commits", false, "Log controller commits")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if !*debugOutput {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *duration+10*time.Second)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	var (
		totalFrames  atomic.Int64
		totalCommits atomic.Int64
		totalErrors  atomic.Int64
		latenciesMu  sync.Mutex
		latenciesNs  []int64
	)

	recordLatency := func(d time.Duration) {
		latenciesMu.Lock()
		latenciesNs = append(latenciesNs, d.Nanoseconds())
		latenciesMu.Unlock()
	}

	worker := func(id int) {
		stream := fmt.Sprintf("loadtest-%d", id)
		p := pipeline.New(pipelineConfig(stream, *grid, *autoTune), nil, nil, logger)
		src := source.NewSyntheticSource(stream, *width, *height, 1e6)

		deadline := time.Now().Add(*duration)
		for time.Now().Before(deadline) {
			if ctx.Err() != nil {
				return
			}
			f, err := src.Next(ctx)
			if err != nil {
				return
			}

			start := time.Now()
			_, diag, err := p.ProcessFrame(ctx, f)
			if err != nil {
				totalErrors.Add(1)
				continue
			}
			recordLatency(time.Since(start))
			totalFrames.Add(1)
			if diag.Tune.Committed {
				totalCommits.Add(1)
			}
		}
	}

	fmt.Fprintf(os.Stderr, "starting load test: streams=%d size=%dx%d duration=%s\n",
		*streams, *width, *height, *duration)
	testStart := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *streams; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			worker(id)
		}(i)
	}
	wg.Wait()

	testDuration := time.Since(testStart)

	frames := totalFrames.Load()
	commits := totalCommits.Load()
	errCount := totalErrors.Load()

	latenciesMu.Lock()
	all := make([]int64, len(latenciesNs))
	copy(all, latenciesNs)
	latenciesMu.Unlock()
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })

	fmt.Println()
	fmt.Println("========================================")
	fmt.Println("       LOAD TEST RESULTS")
	fmt.Println("========================================")
	fmt.Printf("Duration:      %s\n", testDuration.Round(time.Millisecond))
	fmt.Printf("Streams:       %d\n", *streams)
	fmt.Printf("Frame size:    %dx%d\n", *width, *height)
	fmt.Println("----------------------------------------")
	fmt.Println("Throughput:")
	fmt.Printf("  Frames:      %d\n", frames)
	fmt.Printf("  Frames/sec:  %.2f\n", float64(frames)/testDuration.Seconds())
	fmt.Printf("  Commits:     %d\n", commits)
	fmt.Println("----------------------------------------")
	fmt.Println("Latency (per frame):")
	fmt.Printf("  p50:         %s\n", formatNanos(percentile(all, 50)))
	fmt.Printf("  p95:         %s\n", formatNanos(percentile(all, 95)))
	fmt.Printf("  p99:         %s\n", formatNanos(percentile(all, 99)))
	fmt.Println("----------------------------------------")
	fmt.Printf("Errors:        %d\n", errCount)
	fmt.Println("========================================")

	if errCount > 0 {
		os.Exit(1)
	}
}

func pipelineConfig(stream string, grid int, autoTune bool) pipeline.Config {
	return pipeline.Config{
		Stream:   stream,
		Boot:     model.TuningParameters{Gamma: 1.10, CLAHEClip: 2.5},
		Grid:     grid,
		SatThr:   245,
		DarkThr:  10,
		EMAAlpha: 0.15,
		Tuning: tuner.Config{
			Enabled:            autoTune,
			DarkMeanThr:        90,
			BrightMeanThr:      170,
			LowContrastStdThr:  35,
			SatRatioThr:        0.12,
			DarkRatioThr:       0.12,
			GammaStep:          0.05,
			GammaStepSaturated: 0.08,
			CLAHEStep:          0.2,
			GammaMin:           0.70,
			GammaMax:           1.60,
			CLAHEMin:           1.2,
			CLAHEMax:           3.8,
			CLAHETarget:        2.3,
			UpdateEveryN:       8,
			MinUpdateInterval:  250 * time.Millisecond,
		},
	}
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := len(sorted) * pct / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func formatNanos(ns int64) string {
	return time.Duration(ns).Round(time.Microsecond).String()
}
