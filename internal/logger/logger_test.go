package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/framecast/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  *config.LoggingConfig
		wantErr bool
		check   func(t *testing.T, logger *logrus.Logger)
	}{
		{
			name:   "json format stdout",
			config: &config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			check: func(t *testing.T, logger *logrus.Logger) {
				assert.Equal(t, logrus.InfoLevel, logger.Level)
				_, ok := logger.Formatter.(*logrus.JSONFormatter)
				assert.True(t, ok)
				assert.Equal(t, os.Stdout, logger.Out)
			},
		},
		{
			name:   "text format stderr",
			config: &config.LoggingConfig{Level: "debug", Format: "text", Output: "stderr"},
			check: func(t *testing.T, logger *logrus.Logger) {
				assert.Equal(t, logrus.DebugLevel, logger.Level)
				_, ok := logger.Formatter.(*logrus.TextFormatter)
				assert.True(t, ok)
				assert.Equal(t, os.Stderr, logger.Out)
			},
		},
		{
			name: "rotated file output",
			config: &config.LoggingConfig{
				Level:      "warn",
				Format:     "json",
				Output:     filepath.Join(t.TempDir(), "logs", "framecast.log"),
				MaxSize:    10,
				MaxBackups: 3,
				MaxAge:     7,
			},
			check: func(t *testing.T, logger *logrus.Logger) {
				assert.Equal(t, logrus.WarnLevel, logger.Level)
				assert.NotEqual(t, os.Stdout, logger.Out)
			},
		},
		{
			name:    "invalid level",
			config:  &config.LoggingConfig{Level: "loud", Format: "json", Output: "stdout"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, logger)
		})
	}
}

func newBufferLogger() (*logrus.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(logrus.DebugLevel)
	return l, &buf
}

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))[0], &out))
	return out
}

func TestForServiceAndComponent(t *testing.T) {
	l, buf := newBufferLogger()

	log := WithComponent(ForService(l), "pipeline")
	log.WithError(errors.New("boom")).WithField("seq", 7).Warn("tick skipped")

	entry := decodeLine(t, buf)
	assert.Equal(t, "framecast", entry["service"])
	assert.Equal(t, "pipeline", entry["component"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, float64(7), entry["seq"])
	assert.Equal(t, "warning", entry["level"])
	assert.Contains(t, entry["version"], "Framecast")
}

func TestNullLogger(t *testing.T) {
	log := NewNullLogger()
	assert.Same(t, log, log.WithField("a", 1).WithFields(Fields{"b": 2}).WithError(errors.New("x")))
	assert.NotPanics(t, func() {
		log.Info("discarded")
		log.Errorf("discarded %d", 1)
		log.Fatal("does not exit")
	})
}

func TestSampled(t *testing.T) {
	l, buf := newBufferLogger()
	sampled := NewSampled(ForService(l), 2, time.Hour)

	for i := 0; i < 5; i++ {
		sampled.Do("miss", func(log Logger) { log.Info("miss") })
	}
	sampled.Do("publish", func(log Logger) { log.Info("publish") })

	lines := bytes.Count(buf.Bytes(), []byte("\n"))
	assert.Equal(t, 3, lines, "two misses within burst plus one publish")
}
