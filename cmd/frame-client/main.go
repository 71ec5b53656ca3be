// Command frame-client periodically requests a cached frame over the bus and
// logs the reply size and round-trip latency.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/zsiec/framecast/internal/bus"
	"github.com/zsiec/framecast/internal/config"
	"github.com/zsiec/framecast/internal/detection"
	"github.com/zsiec/framecast/internal/logger"
	"github.com/zsiec/framecast/internal/retrieval"
)

func main() {
	var (
		configPath string
		seq        uint64
		width      int
		height     int
		interval   time.Duration
		count      int
		save       string
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Uint64Var(&seq, "seq", 0, "Frame number to request; 0 follows the latest detection broadcast")
	flag.IntVar(&width, "width", 0, "Requested width; 0 keeps the original size")
	flag.IntVar(&height, "height", 0, "Requested height, sent alongside width")
	flag.DurationVar(&interval, "interval", 2*time.Second, "Time between requests")
	flag.IntVar(&count, "count", 0, "Stop after this many requests; 0 runs until interrupted")
	flag.StringVar(&save, "save", "", "Write the last non-empty reply to this file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg.Bus.Instance = "frame-client"

	base, err := logger.New(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log := logger.WithComponent(logger.NewLogrusAdapter(base.WithField("service", "frame-client")), "client")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	b, err := bus.Open(ctx, &cfg.Bus, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to message bus")
		os.Exit(2)
	}
	defer b.Close()

	var latest atomic.Uint64
	latest.Store(seq)
	if seq == 0 {
		sub, err := b.Subscribe(cfg.Bus.DetectionSubject, func(data []byte) {
			rec, err := detection.Decode(data)
			if err != nil {
				log.WithError(err).Warn("Ignoring malformed detection record")
				return
			}
			latest.Store(rec.FrameSeq)
		})
		if err != nil {
			log.WithError(err).Error("Failed to subscribe to detections")
			os.Exit(2)
		}
		defer sub.Unsubscribe()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for sent := 0; count == 0 || sent < count; {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		n := latest.Load()
		if n == 0 {
			log.Debug("No detection broadcast seen yet")
			continue
		}
		sent++

		req := retrieval.Request{Seq: n, Width: width, Height: height}
		start := time.Now()
		reply, err := b.Request(ctx, cfg.Bus.FrameSubject, []byte(req.String()))
		elapsed := time.Since(start)

		fields := logger.Fields{
			"request":    req.String(),
			"latency_ms": elapsed.Milliseconds(),
		}
		if err != nil {
			log.WithFields(fields).WithError(err).Warn("Request failed")
			continue
		}
		fields["bytes"] = len(reply)
		if len(reply) == 0 {
			log.WithFields(fields).Info("Frame not cached")
			continue
		}
		log.WithFields(fields).Info("Frame received")

		if save != "" {
			if err := os.WriteFile(save, reply, 0o644); err != nil {
				log.WithError(err).Warn("Failed to save frame")
			}
		}
	}
}
