package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger 構造化ロガー
// 出力はzapのJSONエンコーダで、スパンが有効な場合は trace_id / span_id を付与する
type Logger struct {
	tracer trace.Tracer
	zap    *zap.Logger
}

// LogLevel ログレベル
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// NewLogger 新しいLoggerを作成（INFOレベル）
func NewLogger(tracer trace.Tracer) *Logger {
	l, err := NewLoggerWithLevel(tracer, "info")
	if err != nil {
		return NewLoggerWithZap(tracer, zap.NewNop())
	}
	return l
}

// NewLoggerWithLevel 指定レベルのLoggerを作成
func NewLoggerWithLevel(tracer trace.Tracer, level string) (*Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true

	z, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return nil, err
	}
	return NewLoggerWithZap(tracer, z), nil
}

// NewLoggerWithZap 既存のzap.Loggerを使うLoggerを作成
func NewLoggerWithZap(tracer trace.Tracer, z *zap.Logger) *Logger {
	return &Logger{
		tracer: tracer,
		zap:    z,
	}
}

// Log ログを出力
func (l *Logger) Log(ctx context.Context, level LogLevel, message string, fields map[string]interface{}) {
	zfields := make([]zap.Field, 0, len(fields)+2)

	// トレースIDとSpanIDを取得
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		zfields = append(zfields,
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
		)
	}
	for k, v := range fields {
		zfields = append(zfields, zap.Any(k, v))
	}

	switch level {
	case LogLevelDebug:
		l.zap.Debug(message, zfields...)
	case LogLevelWarn:
		l.zap.Warn(message, zfields...)
	case LogLevelError:
		l.zap.Error(message, zfields...)
	default:
		l.zap.Info(message, zfields...)
	}
}

// Debug Debugレベルのログを出力
func (l *Logger) Debug(ctx context.Context, message string, fields map[string]interface{}) {
	l.Log(ctx, LogLevelDebug, message, fields)
}

// Info Infoレベルのログを出力
func (l *Logger) Info(ctx context.Context, message string, fields map[string]interface{}) {
	l.Log(ctx, LogLevelInfo, message, fields)
}

// Warn Warnレベルのログを出力
func (l *Logger) Warn(ctx context.Context, message string, fields map[string]interface{}) {
	l.Log(ctx, LogLevelWarn, message, fields)
}

// Error Errorレベルのログを出力
func (l *Logger) Error(ctx context.Context, message string, err error, fields map[string]interface{}) {
	merged := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		merged[k] = v
	}
	if err != nil {
		merged["error"] = err.Error()
	}
	l.Log(ctx, LogLevelError, message, merged)
}

// Sync バッファされたログを書き出す
func (l *Logger) Sync() error {
	return l.zap.Sync()
}
