// risk-api-fake é um upstream de mentira para validar o gateway localmente:
//
//	go run ./teste-validacao/risk-api-fake &
//	UPSTREAM_URL=http://localhost:8081 go run ./cmd/gateway serve
//
// Responde nos mesmos caminhos da API de risco, com status controlável por
// ?status=NNN para exercitar a auditoria de falhas.
package main

import (
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"risk-gateway/middleware/httpx"

	"github.com/go-chi/chi/v5"
)

func main() {
	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	slog.Info("risk api fake listening", "addr", addr)
	if err := http.ListenAndServe(addr, newRouter()); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Post("/api/v1/auth/login", reply(map[string]string{"access_token": "fake", "token_type": "bearer"}))
	r.Get("/api/v1/risk-assessments/{id}", func(w http.ResponseWriter, r *http.Request) {
		reply(map[string]any{"id": chi.URLParam(r, "id"), "risk_score": 42})(w, r)
	})
	r.Get("/api/v1/alerts", reply([]string{}))
	r.Post("/api/v1/documents/upload", func(w http.ResponseWriter, r *http.Request) {
		n, err := io.Copy(io.Discard, r.Body)
		if err != nil {
			httpx.Reject(w, http.StatusRequestEntityTooLarge, err.Error())
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, map[string]int64{"received_bytes": n})
	})
	return r
}

// reply responde body com o status de ?status=, 200 por padrão.
func reply(body any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		if s, err := strconv.Atoi(r.URL.Query().Get("status")); err == nil && s >= 100 && s <= 599 {
			status = s
		}
		httpx.WriteJSON(w, status, body)
	}
}
