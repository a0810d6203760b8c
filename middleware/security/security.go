package security

import (
	"log/slog"
	"net/http"

	"risk-gateway/middleware/clientid"
	"risk-gateway/middleware/httpx"
	"risk-gateway/middleware/security/domain"

	"github.com/felixge/httpsnoop"
)

// DefaultMaxBodyBytes é o tamanho máximo de corpo aceito (50 MiB).
const DefaultMaxBodyBytes int64 = 50 << 20

const (
	MessageForbidden       = "Access denied"
	MessageEntityTooLarge  = "Request entity too large"
	MessageSuspiciousInput = "Access denied"
)

// HardeningHeaders é o conjunto fixo aplicado a toda resposta.
var HardeningHeaders = map[string]string{
	"X-Content-Type-Options":    "nosniff",
	"X-Frame-Options":           "DENY",
	"X-XSS-Protection":          "1; mode=block",
	"Strict-Transport-Security": "max-age=31536000; includeSubDomains",
	"Content-Security-Policy":   "default-src 'self'",
	"Referrer-Policy":           "strict-origin-when-cross-origin",
}

type Options struct {
	BlockList domain.BlockList
	// MaxBodyBytes <= 0 usa DefaultMaxBodyBytes.
	MaxBodyBytes int64
	// BlockSuspicious rejeita path/query com padrões de XSS/SQLi/code injection.
	BlockSuspicious bool
	IdentityFn      func(r *http.Request) string
	Logger          *slog.Logger
}

// IsSuspicious aplica os padrões conhecidos ao path e à query crua.
func IsSuspicious(r *http.Request) bool {
	return domain.IsSuspicious(r.URL.Path, r.URL.RawQuery)
}

func setHardeningHeaders(h http.Header) {
	for k, v := range HardeningHeaders {
		h.Set(k, v)
	}
}

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.IdentityFn == nil {
		opts.IdentityFn = clientid.FromRequest
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			setHardeningHeaders(w.Header())

			identity := opts.IdentityFn(r)

			if opts.BlockList != nil && opts.BlockList.Contains(identity) {
				opts.Logger.Warn("blocked client rejected", "identity", identity, "path", r.URL.Path)
				httpx.Reject(w, http.StatusForbidden, MessageForbidden)
				return
			}

			if r.ContentLength > opts.MaxBodyBytes {
				opts.Logger.Warn("request entity too large",
					"identity", identity, "content_length", r.ContentLength, "max", opts.MaxBodyBytes)
				httpx.Reject(w, http.StatusRequestEntityTooLarge, MessageEntityTooLarge)
				return
			}

			if opts.BlockSuspicious && IsSuspicious(r) {
				opts.Logger.Warn("suspicious request rejected", "identity", identity, "path", r.URL.Path)
				httpx.Reject(w, http.StatusForbidden, MessageSuspiciousInput)
				return
			}

			// sem Content-Length declarado (chunked): limita a leitura
			if r.ContentLength < 0 && r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, opts.MaxBodyBytes)
			}

			w = httpx.EnforceHeaders(w, setHardeningHeaders)

			if !opts.Logger.Enabled(r.Context(), slog.LevelDebug) {
				next.ServeHTTP(w, r)
				return
			}

			m := httpsnoop.CaptureMetrics(next, w, r)
			opts.Logger.LogAttrs(r.Context(), slog.LevelDebug, "request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("identity", identity),
				slog.Int("status", m.Code),
				slog.Duration("duration", m.Duration),
			)
		})
	}
}
