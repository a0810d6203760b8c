package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	auditapp "risk-gateway/middleware/audit/application"
	auditdomain "risk-gateway/middleware/audit/domain"
	auditinfra "risk-gateway/middleware/audit/infra"
	"risk-gateway/middleware/gatekeeper"
	"risk-gateway/middleware/httpx"
	rlinfra "risk-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
)

func main() {
	// Exemplo: a cadeia injetada direto no router da aplicação (sem proxy)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store := rlinfra.NewMemoryWindowStore()
	store.StartJanitor(ctx)

	pipeline, err := gatekeeper.New(gatekeeper.Options{
		Store:    store,
		Recorder: auditapp.NewRecorder(auditinfra.NewSlogSink(logger), auditdomain.DefaultPathSet(), logger, nil),
		Logger:   logger,
	})
	if err != nil {
		logger.Error("pipeline", "error", err)
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              envDefault("LISTEN_ADDR", ":8081"),
		Handler:           newRouter(pipeline),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("example server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newRouter(p *gatekeeper.Pipeline) http.Handler {
	r := chi.NewRouter()
	r.Use(p.Handler)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Post("/api/v1/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"token_type": "bearer"})
	})
	r.Get("/api/v1/alerts", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, []string{})
	})
	r.Post("/api/v1/documents/upload", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	return r
}

func envDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
