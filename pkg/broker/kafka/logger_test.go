package kafka

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestKgoLogger_Level(t *testing.T) {
	tests := []struct {
		level zapcore.Level
		want  kgo.LogLevel
	}{
		{zapcore.DebugLevel, kgo.LogLevelDebug},
		{zapcore.InfoLevel, kgo.LogLevelInfo},
		{zapcore.WarnLevel, kgo.LogLevelWarn},
		{zapcore.ErrorLevel, kgo.LogLevelError},
		{zapcore.FatalLevel, kgo.LogLevelNone},
	}
	for _, tt := range tests {
		core, _ := observer.New(tt.level)
		l := &kgoLogger{zap.New(core)}
		assert.Equal(t, tt.want, l.Level(), tt.level.String())
	}
}

func TestKgoLogger_Log(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := &kgoLogger{zap.New(core)}

	l.Log(kgo.LogLevelWarn, "heartbeat errored", "group", "g1", "err", errors.New("boom"), "dangling")
	l.Log(kgo.LogLevelNone, "dropped")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "heartbeat errored", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "g1", fields["group"])
	assert.Equal(t, "boom", fields["err"])
	assert.Equal(t, "MISSING_VALUE", fields["dangling"])
}
