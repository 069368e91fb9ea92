package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"dwellcam/broadcast"
	"dwellcam/colorsci"
	"dwellcam/config"
	"dwellcam/detection"
	"dwellcam/metrics"
	"dwellcam/overlay"
	"dwellcam/store"
	"dwellcam/tracking"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the detection and tracking pipeline",
	RunE:  runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	for _, warning := range cfg.Normalize() {
		logger.Warn().Msg(warning)
	}

	logger.Info().
		Str("version", version).
		Str("model", cfg.Detector.Model).
		Str("source", cfg.Stream.Source).
		Msg("Starting dwellcam")

	st, err := store.Open(cfg.Storage.Path, logger)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close checkpoint store")
		}
	}()

	// Restore any prior session state; fresh defaults when absent.
	tracker := store.Load(st, store.KeyTracker, func() *tracking.Tracker {
		return tracking.New(cfg.Tracker.DeregisterFrames, cfg.Tracker.MaxDistance, logger)
	})
	aggregator := store.Load(st, store.KeyMetrics, func() *metrics.Aggregator {
		return metrics.NewAggregator()
	})

	weights, netConfig, names, err := detection.ModelFiles(cfg.Detector.ModelDir, cfg.Detector.Model)
	if err != nil {
		return fmt.Errorf("failed to resolve model files: %w", err)
	}

	detector := detection.NewManager(logger)
	if err := detector.Initialize(weights, netConfig, names); err != nil {
		return fmt.Errorf("failed to initialize detector: %w", err)
	}
	defer func() {
		if err := detector.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close detector")
		}
	}()

	info := detector.Info()
	logger.Info().
		Str("provider", info.Type).
		Str("backend", info.Backend).
		Msg("Detector ready")

	estimator := colorsci.NewEstimator()
	renderer := overlay.NewRenderer()

	streamer := broadcast.NewStreamer(cfg.Broadcast.Addr, cfg.Broadcast.JPEGQuality, logger)
	streamer.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := streamer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("Streamer shutdown failed")
		}
	}()

	capture, err := gocv.OpenVideoCapture(cfg.Stream.Source)
	if err != nil {
		return fmt.Errorf("failed to open capture source %q: %w", cfg.Stream.Source, err)
	}
	defer capture.Close()

	// Allow the camera to warm up.
	time.Sleep(time.Duration(cfg.Stream.WarmupSeconds) * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	meter := metrics.NewMeter()
	meter.Start()

	// Best-effort save-what-we-have on every exit path, including errors
	// surfaced through the loop. An unclean kill still loses unsaved state.
	// TODO: checkpoint every few seconds so a crash does not lose the whole
	// session.
	defer func() {
		meter.Stop()
		if err := st.Save(store.KeyMetrics, aggregator); err != nil {
			logger.Error().Err(err).Msg("Failed to save metrics state")
		}
		if err := st.Save(store.KeyTracker, tracker); err != nil {
			logger.Error().Err(err).Msg("Failed to save tracker state")
		}
		logger.Info().
			Float64("elapsed_seconds", meter.Elapsed().Seconds()).
			Float64("fps", meter.FPS()).
			Msg("Session ended")
	}()

	return runLoop(ctx, cfg, logger, capture, detector, tracker, aggregator, estimator, renderer, streamer, meter)
}

// runLoop processes frames until an exit is requested or capture fails.
func runLoop(
	ctx context.Context,
	cfg *config.Config,
	logger zerolog.Logger,
	capture *gocv.VideoCapture,
	detector *detection.Manager,
	tracker *tracking.Tracker,
	aggregator *metrics.Aggregator,
	estimator *colorsci.Estimator,
	renderer *overlay.Renderer,
	streamer *broadcast.Streamer,
	meter *metrics.Meter,
) error {
	frame := gocv.NewMat()
	defer frame.Close()

	readErrors := 0

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("Signal received, shutting down")
			return nil
		default:
		}
		if streamer.CheckExit() {
			logger.Info().Msg("Exit requested via streamer")
			return nil
		}

		aggregator.BeginFrame()

		if ok := capture.Read(&frame); !ok || frame.Empty() {
			readErrors++
			metrics.FrameReadErrors.Inc()
			if readErrors > cfg.Stream.MaxReadErrors {
				return fmt.Errorf("capture failed after %d consecutive read errors", readErrors)
			}
			continue
		}
		readErrors = 0
		metrics.FramesTotal.Inc()

		result, err := detector.Detect(frame, cfg.Detector.Confidence)
		if err != nil {
			logger.Warn().Err(err).Msg("Detection failed, skipping frame")
			continue
		}
		metrics.InferenceDuration.Observe(result.Duration.Seconds())

		people := detection.FilterByLabel(result.Predictions, cfg.Detector.Label)

		// Dominant body color per qualifying detection. Degenerate crops
		// yield no estimate and never abort the frame.
		dominant := make(map[*detection.Prediction]colorsci.BGR)
		for _, p := range people {
			if c, ok := estimator.Estimate(frame, p.Box); ok {
				dominant[p] = c
				logger.Debug().
					Uint8("b", c.B).Uint8("g", c.G).Uint8("r", c.R).
					Msg("Dominant color estimated")
			}
		}

		lines := []string{
			fmt.Sprintf("Model: %s", cfg.Detector.Model),
			fmt.Sprintf("Inference time: %.3f s", result.Duration.Seconds()),
			"People currently detected:",
		}

		objects := tracker.Update(people)
		metrics.TrackedPeople.Set(float64(tracker.ActiveCount()))

		if len(objects) == 0 {
			lines = append(lines, "-- NONE")
		}

		ids := make([]int, 0, len(objects))
		for id := range objects {
			ids = append(ids, id)
		}
		sort.Ints(ids)

		for _, id := range ids {
			pred := objects[id]
			aggregator.Tick(id)

			elapsed, err := aggregator.ElapsedFor(id)
			if err != nil {
				// Cannot happen after Tick; a failure here is a bug.
				return fmt.Errorf("dwell lookup after tick: %w", err)
			}

			pred.Label = overlay.Caption(id, elapsed)
			lines = append(lines, pred.Label)

			var swatch *colorsci.BGR
			if c, ok := dominant[pred]; ok {
				swatch = &c
			}
			renderer.DrawPrediction(&frame, pred, swatch)
		}

		summary := aggregator.Summary()
		metrics.PeopleSeen.Set(float64(summary.Count))
		metrics.DwellSeconds.Set(summary.Total.Seconds())

		lines = append(lines,
			"",
			fmt.Sprintf("Total people seen: %d", summary.Count),
			fmt.Sprintf("Total time: %d sec", int(summary.Total.Seconds())),
			fmt.Sprintf("Average time: %.1f sec", summary.Avg.Seconds()),
			fmt.Sprintf("Longest individual time: %d sec", int(summary.Max.Seconds())),
		)

		renderer.DrawStats(&frame, lines)
		streamer.SendData(frame, lines)
		meter.Update()
	}
}

// setupLogger configures the logger based on configuration.
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
