// Package httpx reúne helpers de resposta compartilhados pelos middlewares.
package httpx

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
)

// ErrorBody é o corpo compacto das rejeições de política (403/413/429).
type ErrorBody struct {
	Error      bool   `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Reject escreve uma rejeição de política no formato padrão.
func Reject(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: true, Message: message})
}

// RejectRetry escreve uma rejeição com dica de retry, em segundos.
func RejectRetry(w http.ResponseWriter, status int, message string, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	WriteJSON(w, status, ErrorBody{Error: true, Message: message, RetryAfter: retryAfterSeconds})
}

// EnforceHeaders devolve um ResponseWriter que chama set imediatamente antes
// dos headers finais saírem (WriteHeader, primeiro Write, ReadFrom ou Flush).
// O que o handler tiver alterado ou duplicado nesses headers é sobrescrito.
func EnforceHeaders(w http.ResponseWriter, set func(http.Header)) http.ResponseWriter {
	sent := false
	apply := func(code int) {
		if sent {
			return
		}
		set(w.Header())
		// 1xx não encerra os headers: a resposta final ainda passa por aqui
		sent = code >= http.StatusOK
	}

	return httpsnoop.Wrap(w, httpsnoop.Hooks{
		WriteHeader: func(next httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
			return func(code int) {
				apply(code)
				next(code)
			}
		},
		Write: func(next httpsnoop.WriteFunc) httpsnoop.WriteFunc {
			return func(b []byte) (int, error) {
				apply(http.StatusOK)
				return next(b)
			}
		},
		ReadFrom: func(next httpsnoop.ReadFromFunc) httpsnoop.ReadFromFunc {
			return func(src io.Reader) (int64, error) {
				apply(http.StatusOK)
				return next(src)
			}
		},
		Flush: func(next httpsnoop.FlushFunc) httpsnoop.FlushFunc {
			return func() {
				apply(http.StatusOK)
				next()
			}
		},
	})
}
