package config

import (
	"fmt"
	"strings"
)

// MaxBatchSize is the largest batch the detector protocol accepts.
const MaxBatchSize = 64

// MaxDetectorMessage bounds one length-prefixed detector message.
const MaxDetectorMessage = 64 << 20

// frameEnvelope is the msgpack overhead allowed per frame and per request.
const frameEnvelope = 256

// BatchMessageSize is an upper estimate of the detector request size for a
// batch of BGR frames.
func BatchMessageSize(width, height, batch int) int64 {
	return int64(batch)*(int64(width)*int64(height)*3+frameEnvelope) + frameEnvelope
}

var modelTypes = map[string]bool{
	"yolo3": true, "y": true,
	"centernet": true, "c": true,
	"mobilenet": true, "m": true,
}

func (c *Config) Validate() error {
	if err := c.Capture.Validate(); err != nil {
		return fmt.Errorf("capture config: %w", err)
	}

	if err := c.Detector.Validate(); err != nil {
		return fmt.Errorf("detector config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.Retrieval.Validate(); err != nil {
		return fmt.Errorf("retrieval config: %w", err)
	}

	if err := c.Bus.Validate(); err != nil {
		return fmt.Errorf("bus config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	if size := BatchMessageSize(c.Capture.Width, c.Capture.Height, c.Detector.BatchSize); size > MaxDetectorMessage {
		return fmt.Errorf("detector batch of %d %dx%d frames needs %d bytes, limit is %d",
			c.Detector.BatchSize, c.Capture.Width, c.Capture.Height, size, MaxDetectorMessage)
	}

	if c.Server.Enabled && c.Metrics.Enabled && c.Server.Port == c.Metrics.Port {
		return fmt.Errorf("server and metrics ports must differ (both %d)", c.Server.Port)
	}

	return nil
}

func (c *CaptureConfig) Validate() error {
	if c.Source == "" {
		return fmt.Errorf("source cannot be empty")
	}

	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("invalid frame size: %dx%d", c.Width, c.Height)
	}

	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive")
	}

	if c.FrameCount < 0 {
		return fmt.Errorf("frame_count cannot be negative")
	}

	if !strings.HasPrefix(c.Source, "pattern://") && c.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path is required for source %q", c.Source)
	}

	return nil
}

func (d *DetectorConfig) Validate() error {
	if d.BatchSize < 1 || d.BatchSize > MaxBatchSize {
		return fmt.Errorf("batch size %d not supported (1-%d)", d.BatchSize, MaxBatchSize)
	}

	if !modelTypes[strings.ToLower(d.ModelType)] {
		return fmt.Errorf("model type %q not allowed (yolo3, centernet, mobilenet)", d.ModelType)
	}

	if d.Classes <= 0 {
		return fmt.Errorf("classes must be positive")
	}

	if d.ConfidenceThreshold < 0 || d.ConfidenceThreshold > 1 {
		return fmt.Errorf("confidence_threshold must be within [0,1]")
	}

	if d.Command != "" && d.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}

	return nil
}

func (c *CacheConfig) Validate() error {
	if c.Capacity < 0 {
		return fmt.Errorf("capacity cannot be negative")
	}

	if c.Capacity == 0 && c.Retention <= 0 {
		return fmt.Errorf("retention must be positive when capacity is derived")
	}

	return nil
}

// Validate leaves out-of-range jpeg_quality alone: the codec clamps it.
func (r *RetrievalConfig) Validate() error {
	if r.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}

	if r.RateLimit > 0 && r.RateBurst <= 0 {
		return fmt.Errorf("rate_burst must be positive when rate_limit is set")
	}

	return nil
}

func (b *BusConfig) Validate() error {
	switch b.Kind {
	case "nats":
		if b.URL == "" {
			return fmt.Errorf("url is required for nats")
		}
	case "redis":
		if err := b.Redis.Validate(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	default:
		return fmt.Errorf("unsupported bus kind: %q", b.Kind)
	}

	if b.FrameSubject == "" || b.DetectionSubject == "" {
		return fmt.Errorf("frame_subject and detection_subject are required")
	}

	if b.FrameSubject == b.DetectionSubject {
		return fmt.Errorf("frame_subject and detection_subject must differ")
	}

	if b.ConnectTimeout <= 0 {
		return fmt.Errorf("connect_timeout must be positive")
	}

	return nil
}

func (r *RedisConfig) Validate() error {
	if len(r.Addresses) == 0 {
		return fmt.Errorf("at least one Redis address is required")
	}

	if r.DB < 0 {
		return fmt.Errorf("invalid Redis database number: %d", r.DB)
	}

	if r.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative")
	}

	if r.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be positive")
	}

	if r.MinIdleConns < 0 {
		return fmt.Errorf("min_idle_conns cannot be negative")
	}

	if r.MinIdleConns > r.PoolSize {
		return fmt.Errorf("min_idle_conns cannot be greater than pool_size")
	}

	return nil
}

func (s *ServerConfig) Validate() error {
	if !s.Enabled {
		return nil
	}

	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", s.Port)
	}

	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}

	return nil
}

func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"panic": true,
		"fatal": true,
		"error": true,
		"warn":  true,
		"info":  true,
		"debug": true,
		"trace": true,
	}

	if !validLevels[l.Level] {
		return fmt.Errorf("invalid log level: %s", l.Level)
	}

	if l.Format != "json" && l.Format != "text" {
		return fmt.Errorf("log format must be 'json' or 'text'")
	}

	if l.Output != "stdout" && l.Output != "stderr" {
		if l.MaxSize <= 0 {
			return fmt.Errorf("max_size must be positive for file output")
		}
		if l.MaxBackups < 0 {
			return fmt.Errorf("max_backups cannot be negative")
		}
		if l.MaxAge < 0 {
			return fmt.Errorf("max_age cannot be negative")
		}
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if m.Enabled {
		if m.Port < 1 || m.Port > 65535 {
			return fmt.Errorf("invalid metrics port: %d", m.Port)
		}

		if m.Path == "" {
			return fmt.Errorf("metrics path cannot be empty")
		}
	}

	return nil
}
