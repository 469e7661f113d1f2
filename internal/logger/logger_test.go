package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	log, err := New(Config{Level: "debug"})
	require.NoError(t, err)
	require.NotNil(t, log)

	// Fields and With must not panic on a real logger.
	log.Info("test message", String("key", "value"), Int("n", 1))
	log.With(String("component", "test")).Debug("scoped")
	_ = log.Sync()
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"", zapcore.InfoLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNop()
	log.Debug("msg")
	log.Info("msg")
	log.Warn("msg")
	log.Error("msg")
	log.Fatal("msg") // must not exit
	assert.Same(t, log, log.With(String("k", "v")))
	assert.NoError(t, log.Sync())
}
