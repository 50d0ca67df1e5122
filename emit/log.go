package emit

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogEmitter writes events to a zap logger. Error events log at error
// level, everything else at info, except node_start which is debug.
type LogEmitter struct {
	logger *zap.Logger
}

// NewLogEmitter returns an emitter writing to logger. A nil logger drops
// events.
func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogEmitter{logger: logger.Named("pipeline")}
}

// Emit implements Emitter.
func (l *LogEmitter) Emit(e Event) {
	fields := make([]zap.Field, 0, 3+len(e.Meta))
	fields = append(fields,
		zap.String("run_id", e.RunID),
		zap.Int("step", e.Step),
		zap.String("node_id", e.NodeID),
	)
	for k, v := range e.Meta {
		fields = append(fields, metaField(k, v))
	}

	level := zapcore.InfoLevel
	switch {
	case e.Err() != "" || e.Msg == MsgNodeError || e.Msg == MsgRunFailed:
		level = zapcore.ErrorLevel
	case e.Msg == MsgNodeStart || e.Msg == MsgRouted:
		level = zapcore.DebugLevel
	}
	if ce := l.logger.Check(level, e.Msg); ce != nil {
		ce.Write(fields...)
	}
}

func metaField(k string, v any) zap.Field {
	switch v := v.(type) {
	case string:
		return zap.String(k, v)
	case int:
		return zap.Int(k, v)
	case int64:
		return zap.Int64(k, v)
	case float64:
		return zap.Float64(k, v)
	case bool:
		return zap.Bool(k, v)
	case time.Duration:
		return zap.Duration(k, v)
	case []string:
		return zap.Strings(k, v)
	case fmt.Stringer:
		return zap.Stringer(k, v)
	}
	return zap.Any(k, v)
}
