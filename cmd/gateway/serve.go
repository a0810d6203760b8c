package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"risk-gateway/internal/admin"
	"risk-gateway/internal/config"
	"risk-gateway/internal/telemetry"
	"risk-gateway/middleware/httpx"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway in front of UPSTREAM_URL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	if cfg.UpstreamURL == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}

	logger := cfg.NewLogger(os.Stderr)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.Init(ctx, telemetry.Options{
		Endpoint: cfg.OTLPEndpoint,
		Insecure: cfg.OTLPInsecure,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	gw, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.Transport = telemetry.Transport(nil)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.Error("proxy error", "path", r.URL.Path, "error", err)
		httpx.Reject(w, http.StatusBadGateway, "Bad gateway")
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           telemetry.HTTPMiddleware("gateway")(gw.pipeline.Handler(proxy)),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	var adminSrv *http.Server
	if cfg.AdminAddr != "" {
		adminSrv = &http.Server{
			Addr: cfg.AdminAddr,
			Handler: admin.NewRouter(admin.Options{
				Blocker:  gw.pipeline,
				Stats:    gw.stats,
				Windows:  gw.memory,
				Gatherer: gw.registry,
				Logger:   logger,
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info("admin listening", "addr", cfg.AdminAddr)
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin server error", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("gateway listening",
		"addr", cfg.ListenAddr,
		"upstream", target.String(),
		"rate_enabled", cfg.RateEnabled,
		"rate_backend", cfg.RateBackend,
		"max_body_bytes", cfg.MaxBodyBytes,
		"blocklist_file", cfg.BlockListFile,
		"audit_file", cfg.AuditFile,
	)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
	if adminSrv != nil {
		_ = adminSrv.Shutdown(shutdownCtx)
	}
	// depois do servidor: requisições em andamento ainda emitem auditoria
	if err := gw.Close(shutdownCtx); err != nil {
		logger.Warn("closing gateway resources", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn("tracing shutdown", "error", err)
	}
	return serveErr
}
