package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Capture   CaptureConfig   `mapstructure:"capture"`
	Detector  DetectorConfig  `mapstructure:"detector"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Bus       BusConfig       `mapstructure:"bus"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type CaptureConfig struct {
	Source     string  `mapstructure:"source"` // file path, rtsp:// url, /dev/videoN or pattern://
	Width      int     `mapstructure:"width"`
	Height     int     `mapstructure:"height"`
	FPS        float64 `mapstructure:"fps"`         // nominal capture rate, also sizes the cache
	Loop       bool    `mapstructure:"loop"`        // rewind finite sources at end of stream
	FrameCount int     `mapstructure:"frame_count"` // pattern:// only, 0 = endless
	FFmpegPath string  `mapstructure:"ffmpeg_path"`
}

type DetectorConfig struct {
	Command             string        `mapstructure:"command"` // empty runs the built-in static detector
	Args                []string      `mapstructure:"args"`
	ModelType           string        `mapstructure:"model_type"` // yolo3|centernet|mobilenet or y|c|m
	ModelPath           string        `mapstructure:"model_path"`
	Classes             int           `mapstructure:"classes"`
	LabelsFile          string        `mapstructure:"labels_file"`
	BatchSize           int           `mapstructure:"batch_size"`
	ConfidenceThreshold float64       `mapstructure:"confidence_threshold"`
	Timeout             time.Duration `mapstructure:"timeout"`
}

type CacheConfig struct {
	Capacity  int           `mapstructure:"capacity"`  // 0 derives from capture.fps * retention
	Retention time.Duration `mapstructure:"retention"` // how far back frames stay retrievable
}

type RetrievalConfig struct {
	JPEGQuality int     `mapstructure:"jpeg_quality"`
	RateLimit   float64 `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst   int     `mapstructure:"rate_burst"`
}

type BusConfig struct {
	Kind             string        `mapstructure:"kind"` // nats or redis
	URL              string        `mapstructure:"url"`
	Instance         string        `mapstructure:"instance"`
	FrameSubject     string        `mapstructure:"frame_subject"`
	DetectionSubject string        `mapstructure:"detection_subject"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	Redis            RedisConfig   `mapstructure:"redis"`
}

type RedisConfig struct {
	Addresses    []string      `mapstructure:"addresses"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type ServerConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	DebugEndpoints  bool          `mapstructure:"debug_endpoints"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`     // json or text
	Output     string `mapstructure:"output"`     // stdout, stderr, or file path
	MaxSize    int    `mapstructure:"max_size"`   // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// CacheCapacity is the frame store size: the explicit capacity if set,
// otherwise enough entries to cover the retention window at the nominal fps.
func (c *Config) CacheCapacity() int {
	if c.Cache.Capacity > 0 {
		return c.Cache.Capacity
	}
	n := int(math.Ceil(c.Capture.FPS * c.Cache.Retention.Seconds()))
	if n < 1 {
		return 1
	}
	return n
}

// Load reads the yaml file at configPath. An empty path loads defaults and
// environment overrides only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix("FRAMECAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Capture defaults
	v.SetDefault("capture.source", "pattern://")
	v.SetDefault("capture.width", 640)
	v.SetDefault("capture.height", 480)
	v.SetDefault("capture.fps", 25)
	v.SetDefault("capture.loop", true)
	v.SetDefault("capture.frame_count", 0)
	v.SetDefault("capture.ffmpeg_path", "ffmpeg")

	// Detector defaults
	v.SetDefault("detector.command", "")
	v.SetDefault("detector.args", []string{})
	v.SetDefault("detector.model_type", "yolo3")
	v.SetDefault("detector.model_path", "yolo3_berkeley.rt")
	v.SetDefault("detector.classes", 80)
	v.SetDefault("detector.labels_file", "")
	v.SetDefault("detector.batch_size", 1)
	v.SetDefault("detector.confidence_threshold", 0.3)
	v.SetDefault("detector.timeout", "2s")

	// Cache defaults: 10 seconds at 25 fps
	v.SetDefault("cache.capacity", 0)
	v.SetDefault("cache.retention", "10s")

	// Retrieval defaults
	v.SetDefault("retrieval.jpeg_quality", 70)
	v.SetDefault("retrieval.rate_limit", 0)
	v.SetDefault("retrieval.rate_burst", 10)

	// Bus defaults
	v.SetDefault("bus.kind", "nats")
	v.SetDefault("bus.url", "nats://127.0.0.1:4222")
	v.SetDefault("bus.instance", "")
	v.SetDefault("bus.frame_subject", "frame")
	v.SetDefault("bus.detection_subject", "detections")
	v.SetDefault("bus.connect_timeout", "5s")
	v.SetDefault("bus.request_timeout", "1s")
	v.SetDefault("bus.redis.addresses", []string{"localhost:6379"})
	v.SetDefault("bus.redis.db", 0)
	v.SetDefault("bus.redis.max_retries", 3)
	v.SetDefault("bus.redis.dial_timeout", "5s")
	v.SetDefault("bus.redis.read_timeout", "3s")
	v.SetDefault("bus.redis.write_timeout", "3s")
	v.SetDefault("bus.redis.pool_size", 20)
	v.SetDefault("bus.redis.min_idle_conns", 2)

	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "5s")
	v.SetDefault("server.debug_endpoints", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age", 30)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.port", 9090)
}
