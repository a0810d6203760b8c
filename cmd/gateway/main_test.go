package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"risk-gateway/internal/config"
	"risk-gateway/middleware/audit/domain"
	auditinfra "risk-gateway/middleware/audit/infra"
	rldomain "risk-gateway/middleware/ratelimit/domain"
	secinfra "risk-gateway/middleware/security/infra"

	"github.com/alicebob/miniredis/v2"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestBlockAndUnblockEditFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocklist.yaml")

	if out, err := run(t, "block", "203.0.113.4", "--file", path); err != nil || !strings.Contains(out, "blocked: 203.0.113.4") {
		t.Fatalf("block: %v %q", err, out)
	}
	b, err := secinfra.NewFileBlockList(path, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !b.Contains("203.0.113.4") {
		t.Fatalf("expected identity in file")
	}

	if _, err := run(t, "unblock", "203.0.113.4", "--file", path); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	_ = b.Load()
	if b.Contains("203.0.113.4") {
		t.Fatalf("expected identity removed")
	}
}

func TestBlockRequiresTarget(t *testing.T) {
	t.Setenv("BLOCKLIST_FILE", "")
	if _, err := run(t, "block", "1.2.3.4"); err == nil {
		t.Fatalf("expected error without --file or --admin")
	}
}

func TestBlockViaAdmin(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod, gotPath = r.Method, r.URL.EscapedPath()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if _, err := run(t, "unblock", "2001:db8::1", "--admin", srv.URL); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	if gotMethod != http.MethodDelete || !strings.HasPrefix(gotPath, "/blocklist/2001") {
		t.Fatalf("unexpected request %s %s", gotMethod, gotPath)
	}
}

func TestAuditVerify(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	sink, err := auditinfra.OpenFileSink(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = sink.Write(context.Background(), domain.Record{ID: "a", Path: "/auth/login", StatusCode: 401})
	_ = sink.Close()

	out, err := run(t, "audit", "verify", path)
	if err != nil || !strings.Contains(out, "ok: 1 records verified") {
		t.Fatalf("verify: %v %q", err, out)
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	p, err := rldomain.NewPolicy(map[rldomain.EndpointClass]rldomain.Rule{
		rldomain.ClassAPI: {Quota: 2, Window: time.Minute},
	})
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return config.Config{
		MaxBodyBytes:   1 << 20,
		TrustForwarded: true,
		RateEnabled:    true,
		RateBackend:    "memory",
		Policy:         p,
		AuditFile:      filepath.Join(t.TempDir(), "audit.jsonl"),
		AuditBuffer:    16,
		BlockListFile:  filepath.Join(t.TempDir(), "blocklist.yaml"),
	}
}

func TestBuild_WiresPipelineEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := build(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	upstream := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := gw.pipeline.Handler(upstream)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		r := httptest.NewRequest(http.MethodGet, "http://gw/api/v1/alerts", nil)
		r.Header.Set("X-Forwarded-For", "192.0.2.1")
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}
	if codes[0] != 200 || codes[1] != 200 || codes[2] != 429 {
		t.Fatalf("unexpected codes %v", codes)
	}

	if err := gw.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	n, err := auditinfra.VerifyFile(cfg.AuditFile)
	if err != nil || n != 1 {
		t.Fatalf("expected one verified audit record, got %d (%v)", n, err)
	}
	if got := gw.stats.Total(); got.Allowed != 2 || got.Denied != 1 {
		t.Fatalf("unexpected stats %+v", got)
	}
}

func TestBuild_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RateBackend = "redis"
	cfg.RedisAddr = mr.Addr()
	cfg.RateRedisPrefix = "ratelimit:window"

	gw, err := build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer func() { _ = gw.Close(context.Background()) }()

	h := gw.pipeline.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	r := httptest.NewRequest(http.MethodGet, "http://gw/api/v1/alerts", nil)
	r.RemoteAddr = "192.0.2.9:1000"
	h.ServeHTTP(httptest.NewRecorder(), r)

	if keys := mr.Keys(); len(keys) != 1 || keys[0] != "ratelimit:window:api:192.0.2.9" {
		t.Fatalf("unexpected redis keys %v", keys)
	}
}
