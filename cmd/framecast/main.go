package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zsiec/framecast/internal/bus"
	"github.com/zsiec/framecast/internal/capture"
	"github.com/zsiec/framecast/internal/config"
	"github.com/zsiec/framecast/internal/detection"
	"github.com/zsiec/framecast/internal/detector"
	"github.com/zsiec/framecast/internal/framestore"
	"github.com/zsiec/framecast/internal/health"
	"github.com/zsiec/framecast/internal/logger"
	"github.com/zsiec/framecast/internal/pipeline"
	"github.com/zsiec/framecast/internal/retrieval"
	"github.com/zsiec/framecast/internal/server"
	"github.com/zsiec/framecast/pkg/version"
)

const (
	exitOK      = 0
	exitConfig  = 1
	exitRuntime = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults and FRAMECAST_* env when empty)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Println(version.GetInfo().String())
		return exitOK
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return exitConfig
	}

	base, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return exitConfig
	}
	log := logger.ForService(base)

	log.WithField("version", version.GetInfo().Short()).Info("Starting Framecast")
	log.WithField("config_path", configPath).Debug("Configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.WithField("signal", sig).Info("Received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if cfg.Metrics.Enabled {
		go startMetricsServer(cfg.Metrics, log)
	}

	b, err := bus.Open(ctx, &cfg.Bus, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to message bus")
		return exitRuntime
	}
	defer closeLogged(log, "bus", b.Close)

	labels, err := detector.Labels(&cfg.Detector, log)
	if err != nil {
		log.WithError(err).Error("Failed to load class labels")
		return exitRuntime
	}

	det, err := detector.New(&cfg.Detector, log)
	if err != nil {
		log.WithError(err).Error("Failed to start detector")
		return exitRuntime
	}
	defer closeLogged(log, "detector", det.Close)

	src, err := capture.Open(ctx, &cfg.Capture, log)
	if err != nil {
		log.WithError(err).Error("Failed to open video source")
		return exitRuntime
	}
	defer closeLogged(log, "video source", src.Close)

	store := framestore.New(cfg.CacheCapacity())
	log.WithField("capacity", store.Capacity()).Info("Frame cache ready")

	svc := retrieval.NewService(store, retrieval.Options{
		Quality:   cfg.Retrieval.JPEGQuality,
		RateLimit: cfg.Retrieval.RateLimit,
		RateBurst: cfg.Retrieval.RateBurst,
	}, log)

	loop := pipeline.New(src, det, detection.NewSerializer(labels), store, b, pipeline.Options{
		BatchSize:           cfg.Detector.BatchSize,
		ConfidenceThreshold: cfg.Detector.ConfidenceThreshold,
		Subject:             cfg.Bus.DetectionSubject,
		Loop:                cfg.Capture.Loop,
	}, log)

	go func() {
		if err := svc.Serve(ctx, b, cfg.Bus.FrameSubject); err != nil {
			log.WithError(err).Error("Frame request responder failed")
			cancel()
		}
	}()

	if cfg.Server.Enabled {
		srv := newServer(cfg, log, b, loop, svc)
		go func() {
			if err := srv.Start(ctx); err != nil {
				log.WithError(err).Error("HTTP server error")
				cancel()
			}
		}()
	}

	runErr := loop.Run(ctx)
	cancel()
	loop.LogSummary()

	if runErr != nil {
		log.WithError(runErr).Error("Capture loop failed")
		return exitRuntime
	}
	log.Info("Framecast shutdown complete")
	return exitOK
}

func newServer(cfg *config.Config, log logger.Logger, b bus.Bus, loop *pipeline.Loop, svc *retrieval.Service) *server.Server {
	mgr := health.NewManager(log)
	mgr.Register(health.NewBusChecker(b, cfg.Bus.Kind))
	if rb, ok := b.(*bus.RedisBus); ok {
		mgr.Register(health.NewRedisChecker(rb.Client()))
	}
	mgr.Register(health.NewCaptureChecker(loop, staleAfter(cfg)))
	if !strings.HasPrefix(cfg.Capture.Source, capture.PatternScheme) {
		mgr.Register(health.NewFFmpegChecker(cfg.Capture.FFmpegPath))
	}

	srv := server.New(&cfg.Server, log, mgr)
	handlers := retrieval.NewHandlers(svc, srv.ErrorHandler(), func() interface{} {
		return loop.Status()
	})
	srv.RegisterRoutes(handlers.RegisterRoutes)
	return srv
}

// staleAfter is how long the capture loop may go without a tick before it
// reports degraded: one detector timeout plus a few seconds of slack.
func staleAfter(cfg *config.Config) time.Duration {
	return cfg.Detector.Timeout + 5*time.Second
}

func closeLogged(log logger.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		log.WithError(err).WithField("component", what).Warn("Close failed")
	}
}

func startMetricsServer(cfg config.MetricsConfig, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.WithField("addr", addr).Info("Starting metrics server")

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.WithError(err).Error("Metrics server error")
	}
}
