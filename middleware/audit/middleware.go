package audit

import (
	"net/http"
	"time"

	"risk-gateway/middleware/audit/application"
	"risk-gateway/middleware/clientid"

	"github.com/felixge/httpsnoop"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	Recorder   *application.Recorder
	IdentityFn func(r *http.Request) string
	Now        func() time.Time
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.IdentityFn == nil {
		opts.IdentityFn = clientid.FromRequest
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return func(next http.Handler) http.Handler {
		if opts.Recorder == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := opts.Now()
			// path e query antes do next: handlers internos podem reescrever r.URL
			path, query := r.URL.Path, r.URL.Query()

			m := httpsnoop.CaptureMetrics(next, w, r)

			ex := application.Exchange{
				Start:        start,
				Duration:     m.Duration,
				ClientIP:     opts.IdentityFn(r),
				UserAgent:    r.UserAgent(),
				Method:       r.Method,
				Path:         path,
				Query:        query,
				Header:       r.Header,
				Status:       m.Code,
				RequestSize:  r.ContentLength,
				ResponseSize: m.Written,
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.HasTraceID() {
				ex.TraceID = sc.TraceID().String()
			}
			opts.Recorder.Record(r.Context(), ex)
		})
	}
}
