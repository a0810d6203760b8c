// Package clientid resolve a identidade de cliente usada como chave pelo
// bloqueio e pelo rate limit.
//
// Precedência: primeiro IP do X-Forwarded-For, X-Real-IP, endereço do peer
// (sem porta). Sem nenhum deles, a identidade é "unknown"; todos os clientes
// nessa situação dividem o mesmo balde.
package clientid

import (
	"context"
	"net"
	"net/http"
	"strings"
)

const (
	HeaderForwardedFor = "X-Forwarded-For"
	HeaderRealIP       = "X-Real-IP"

	// Unknown é a identidade usada quando nada identifica o cliente.
	Unknown = "unknown"
)

// Resolver extrai a identidade de uma requisição.
type Resolver struct {
	// IgnoreForwarded desliga X-Forwarded-For/X-Real-IP (gateway exposto
	// diretamente, sem proxy confiável na frente).
	IgnoreForwarded bool
}

// Resolve aplica a precedência padrão (headers de proxy confiáveis).
func Resolve(r *http.Request) string { return Resolver{}.Resolve(r) }

func (res Resolver) Resolve(r *http.Request) string {
	if !res.IgnoreForwarded {
		if xff := r.Header.Get(HeaderForwardedFor); xff != "" {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if realIP := r.Header.Get(HeaderRealIP); realIP != "" {
			return realIP
		}
	}

	// fallback: RemoteAddr
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return Unknown
}

type ctxKey struct{}

// WithIdentity guarda a identidade resolvida no contexto.
func WithIdentity(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// FromRequest devolve a identidade já resolvida para a requisição ou a
// resolve com a precedência padrão.
func FromRequest(r *http.Request) string {
	if id, ok := FromContext(r.Context()); ok {
		return id
	}
	return Resolve(r)
}

// Middleware resolve a identidade uma única vez e a injeta no contexto para
// os estágios seguintes.
func Middleware(res Resolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := FromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}
			id := res.Resolve(r)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
