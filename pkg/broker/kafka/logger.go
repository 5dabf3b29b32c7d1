package kafka

import (
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// kgoLogger routes franz-go client logs into zap.
type kgoLogger struct {
	*zap.Logger
}

// Level reports the most verbose kgo level the zap core accepts.
func (l *kgoLogger) Level() kgo.LogLevel {
	core := l.Logger.Core()
	switch {
	case core.Enabled(zapcore.DebugLevel):
		return kgo.LogLevelDebug
	case core.Enabled(zapcore.InfoLevel):
		return kgo.LogLevelInfo
	case core.Enabled(zapcore.WarnLevel):
		return kgo.LogLevelWarn
	case core.Enabled(zapcore.ErrorLevel):
		return kgo.LogLevelError
	default:
		return kgo.LogLevelNone
	}
}

// Log writes msg with keyvals converted to zap fields.
func (l *kgoLogger) Log(level kgo.LogLevel, msg string, keyvals ...any) {
	fields := make([]zap.Field, 0, (len(keyvals)+1)/2)
	for i := 0; i < len(keyvals); i += 2 {
		key := fmt.Sprint(keyvals[i])
		if i+1 >= len(keyvals) {
			fields = append(fields, zap.String(key, "MISSING_VALUE"))
			break
		}
		if err, ok := keyvals[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keyvals[i+1]))
	}

	switch level {
	case kgo.LogLevelNone:
	case kgo.LogLevelDebug:
		l.Logger.Debug(msg, fields...)
	case kgo.LogLevelWarn:
		l.Logger.Warn(msg, fields...)
	case kgo.LogLevelError:
		l.Logger.Error(msg, fields...)
	default:
		l.Logger.Info(msg, fields...)
	}
}
