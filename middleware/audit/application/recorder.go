package application

import (
	"context"
	"log/slog"
	"time"

	"risk-gateway/middleware/audit/domain"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Exchange é o que o adapter HTTP observou de uma requisição concluída.
type Exchange struct {
	Start     time.Time
	Duration  time.Duration
	ClientIP  string
	UserAgent string
	Method    string
	Path      string
	Query     map[string][]string
	Header    map[string][]string
	Status    int
	// RequestSize é o Content-Length declarado (-1 quando desconhecido).
	RequestSize  int64
	ResponseSize int64
	TraceID      string
}

type Recorder struct {
	Sink           domain.Sink
	SensitivePaths domain.PathSet
	// IncludeHeaders anexa os headers (já redigidos) ao registro.
	IncludeHeaders bool
	Logger         *slog.Logger
	Metrics        *Metrics
	NewID          func() string

	// limita o log de falha do sink a uma linha por intervalo
	failLog rate.Sometimes
}

func NewRecorder(sink domain.Sink, paths domain.PathSet, logger *slog.Logger, m *Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		Sink:           sink,
		SensitivePaths: paths,
		Logger:         logger,
		Metrics:        m,
		failLog:        rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// ShouldRecord: caminho sensível ou resposta de erro.
func (rc *Recorder) ShouldRecord(path string, status int) bool {
	return status >= 400 || rc.SensitivePaths.IsSensitive(path)
}

func (rc *Recorder) Build(ex Exchange) domain.Record {
	flags := rc.SensitivePaths.Flags(ex.Method, ex.Path)

	var auth *domain.AuthInfo
	if ex.Header != nil {
		auth = domain.DescribeAuth(first(ex.Header, "Authorization"), first(ex.Header, "X-Api-Key"))
	}

	userAgent := ex.UserAgent
	if userAgent == "" {
		userAgent = "unknown"
	}

	id := ""
	if rc.NewID != nil {
		id = rc.NewID()
	} else {
		id = uuid.NewString()
	}

	rec := domain.Record{
		ID:            id,
		Timestamp:     ex.Start.UTC(),
		Severity:      domain.SeverityFor(ex.Status, flags),
		ClientIP:      ex.ClientIP,
		UserAgent:     userAgent,
		Method:        ex.Method,
		Path:          ex.Path,
		QueryParams:   domain.RedactQuery(ex.Query),
		StatusCode:    ex.Status,
		DurationMS:    float64(ex.Duration.Microseconds()) / 1000,
		UserInfo:      auth,
		RequestSize:   ex.RequestSize,
		ResponseSize:  ex.ResponseSize,
		TraceID:       ex.TraceID,
		SecurityFlags: flags,
	}
	if rc.IncludeHeaders {
		rec.Headers = domain.RedactHeaders(ex.Header)
	}
	return rec
}

// Emit entrega o registro ao sink. Falhas são contadas e logadas aqui e
// nunca retornam ao chamador.
func (rc *Recorder) Emit(ctx context.Context, rec domain.Record) {
	if rc.Sink == nil {
		return
	}
	err := rc.Sink.Write(ctx, rec)
	if err == nil {
		rc.Metrics.emitted(rec.Severity)
		return
	}
	rc.Metrics.failed()
	rc.failLog.Do(func() {
		rc.Logger.Error("audit sink write failed",
			"error", err, "audit_id", rec.ID, "severity", rec.Severity, "path", rec.Path)
	})
}

// Record aplica a regra de emissão e, se for o caso, monta e emite.
// Requisição cancelada pelo cliente não gera registro.
func (rc *Recorder) Record(ctx context.Context, ex Exchange) {
	if !rc.ShouldRecord(ex.Path, ex.Status) {
		return
	}
	if ctx.Err() != nil {
		rc.Metrics.skipped()
		rc.Logger.Debug("audit skipped, request canceled", "path", ex.Path, "identity", ex.ClientIP)
		return
	}
	rc.Emit(context.WithoutCancel(ctx), rc.Build(ex))
}

func first(h map[string][]string, key string) string {
	if v := h[key]; len(v) > 0 {
		return v[0]
	}
	return ""
}
