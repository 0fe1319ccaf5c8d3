package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Tutortoise/frame-detection-service/config"
	"github.com/Tutortoise/frame-detection-service/detections"
	"github.com/Tutortoise/frame-detection-service/pipeline"
	"github.com/Tutortoise/frame-detection-service/source"
)

func newLogger(debug bool) (*zap.SugaredLogger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// initRuntime loads the ONNX Runtime shared library. The returned function tears
// the environment down.
func initRuntime(libPath string) (func() error, error) {
	if libPath != "" {
		ort.SetSharedLibraryPath(libPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}
	return ort.DestroyEnvironment, nil
}

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Errorw("exiting", "error", err, "kind", detections.KindOf(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.SugaredLogger) (err error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	features := detections.CPUFeatures()
	logger.Infow("starting", "backend", cfg.Detector.Backend, "model", cfg.Detector.ModelPath, "cpu_features", features)

	if cfg.Detector.Backend == "onnx" {
		destroy, initErr := initRuntime(cfg.Detector.RuntimeLibrary)
		if initErr != nil {
			return initErr
		}
		defer func() { err = multierr.Append(err, destroy()) }()
	}

	det, err := detections.Open(cfg.Backend(), logger)
	if err != nil {
		return fmt.Errorf("failed to open detector: %w", err)
	}
	defer func() { err = multierr.Append(err, det.Close()) }()

	labels := resolveLabels(cfg.Labels, cfg.Detector.ModelPath, logger)
	p, err := pipeline.New(det, cfg.PipelineOptions(labels), logger)
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	if err = p.Start(ctx); err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, p.Stop()) }()

	if len(cfg.Source.Images) > 0 {
		src, srcErr := source.NewImageSource(cfg.Source.Images, true)
		if srcErr != nil {
			return srcErr
		}
		go func() {
			if err := p.Ingest(ctx, src, cfg.Source.Interval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warnw("ingest stopped", "error", err)
			}
		}()
	} else {
		logger.Infow("no image source configured, waiting for frames")
	}

	var srv *http.Server
	if cfg.Monitoring.Addr != "" {
		state := &AppState{Pipeline: p, Backend: cfg.Detector.Backend, CPUFeatures: features, Logger: logger}
		r := mux.NewRouter()
		state.addMonitoringRoutes(r)

		srv = &http.Server{
			Handler:      r,
			Addr:         cfg.Monitoring.Addr,
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  10 * time.Second,
		}
		go func() {
			logger.Infow("monitoring server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("monitoring server failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Infow("shutting down")

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Monitoring.ShutdownTimeout)
		defer cancel()
		err = multierr.Append(err, srv.Shutdown(shutdownCtx))
	}
	return err
}
