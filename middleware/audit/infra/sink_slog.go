package infra

import (
	"context"
	"log/slog"

	"risk-gateway/middleware/audit/domain"
)

// SlogSink escreve o registro no logger: falhas em Warn, o resto em Info.
// A mensagem é a severidade (FAILED_REQUEST, SENSITIVE_OPERATION, REQUEST).
type SlogSink struct {
	Logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{Logger: logger.With("component", "audit")}
}

func (s *SlogSink) Write(ctx context.Context, rec domain.Record) error {
	level := slog.LevelInfo
	if rec.Severity == domain.SeverityFailedRequest {
		level = slog.LevelWarn
	}
	s.Logger.LogAttrs(ctx, level, string(rec.Severity),
		slog.String("audit_id", rec.ID),
		slog.String("client_ip", rec.ClientIP),
		slog.String("method", rec.Method),
		slog.String("path", rec.Path),
		slog.Int("status_code", rec.StatusCode),
		slog.Float64("process_time_ms", rec.DurationMS),
		slog.Any("record", rec),
	)
	return nil
}
