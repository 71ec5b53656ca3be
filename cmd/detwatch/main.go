// Command detwatch shows the detection broadcast in a terminal dashboard.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"

	"github.com/zsiec/framecast/internal/bus"
	"github.com/zsiec/framecast/internal/config"
	"github.com/zsiec/framecast/internal/logger"
	"github.com/zsiec/framecast/internal/watch"
)

// feedBuffer bounds records queued for the view; newer records are dropped
// while it is full.
const feedBuffer = 256

func main() {
	var (
		configPath string
		subject    string
		logFile    string
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&subject, "subject", "", "Detection subject; defaults to bus.detection_subject")
	flag.StringVar(&logFile, "log", "", "Write logs to this file instead of discarding them")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if subject == "" {
		subject = cfg.Bus.DetectionSubject
	}
	cfg.Bus.Instance = "detwatch"

	// The TUI owns the terminal, so logs go to a file or nowhere.
	base := logrus.New()
	base.SetOutput(io.Discard)
	if logFile != "" {
		cfg.Logging.Output = logFile
		if base, err = logger.New(&cfg.Logging); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
			os.Exit(1)
		}
	}
	log := logger.WithComponent(logger.NewLogrusAdapter(base.WithField("service", "detwatch")), "watch")

	ctx := context.Background()
	b, err := bus.Open(ctx, &cfg.Bus, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to message bus: %v\n", err)
		os.Exit(2)
	}
	defer b.Close()

	feed := make(chan []byte, feedBuffer)
	sub, err := b.Subscribe(subject, func(data []byte) {
		select {
		case feed <- data:
		default:
			log.Debug("Watcher feed full, dropping record")
		}
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to subscribe to %s: %v\n", subject, err)
		os.Exit(2)
	}
	defer sub.Unsubscribe()

	if _, err := tea.NewProgram(watch.New(subject, feed), tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Watcher error: %v\n", err)
		os.Exit(1)
	}
}
