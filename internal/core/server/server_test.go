package server

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"

	"github.com/solatis/ratekeeper/internal/core/api"
	"github.com/solatis/ratekeeper/internal/core/config"
	"github.com/solatis/ratekeeper/internal/core/metrics"
	"github.com/solatis/ratekeeper/internal/rules"
)

func newTestService(t *testing.T, cfg *config.QuoteAPIConfig, m *metrics.Metrics) *api.QuoteService {
	t.Helper()
	engine := rules.NewEngine(0)
	if m != nil {
		m.RegisterCache(engine)
	}
	svc, err := api.NewQuoteService(engine, nil, nil, cfg, m, nil)
	if err != nil {
		t.Fatalf("NewQuoteService() error = %v", err)
	}
	return svc
}

func TestNewServers_NilArgs(t *testing.T) {
	cfg := config.DefaultQuoteAPIConfig()
	svc := newTestService(t, cfg, nil)

	if _, err := NewGRPCServer(nil, svc, nil, nil); err == nil {
		t.Error("expected error for nil cfg")
	}
	if _, err := NewGRPCServer(cfg, nil, nil, nil); err == nil {
		t.Error("expected error for nil service")
	}
	if _, err := NewHTTPServer(nil, svc, nil, nil); err == nil {
		t.Error("expected error for nil cfg")
	}
}

func TestHTTPServer_Routes(t *testing.T) {
	cfg := config.DefaultQuoteAPIConfig()
	cfg.InsuranceFallback = true
	m := metrics.New()
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))

	srv, err := NewHTTPServer(cfg, newTestService(t, cfg, m), m, logger)
	if err != nil {
		t.Fatalf("NewHTTPServer() error = %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz status = %d", resp.StatusCode)
	}

	body := `{"context": {"ex_showroom_price": 100000, "engine_cc": 110, "fuel_type": "PETROL", "tenures": {"OD": 1, "TP": 5}}}`
	resp, err = http.Post(ts.URL+"/v1/quotes/insurance", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	out, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(out), `"total_premium":"6561"`) {
		t.Errorf("insurance quote = %d %s", resp.StatusCode, out)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	scrape, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		`ratekeeper_quotes_total{kind="insurance",outcome="ok"} 1`,
		`ratekeeper_http_requests_total{method="POST",route="/v1/quotes/insurance",status="200"} 1`,
		"ratekeeper_compile_cache_misses_total 1",
	} {
		if !strings.Contains(string(scrape), want) {
			t.Errorf("metrics missing %q", want)
		}
	}

	if !strings.Contains(logs.String(), `"path":"/v1/quotes/insurance"`) {
		t.Errorf("request not logged: %s", logs.String())
	}
}

func TestHTTPServer_BodyLimit(t *testing.T) {
	cfg := config.DefaultQuoteAPIConfig()
	cfg.MaxRequestBytes = 64
	srv, err := NewHTTPServer(cfg, newTestService(t, cfg, nil), nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/quotes/insurance", strings.NewReader(`{"context": {"fuel_type": "`+strings.Repeat("x", 128)+`"}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", rec.Code)
	}
}

func TestGRPCServer_HealthAndShutdown(t *testing.T) {
	cfg := config.DefaultQuoteAPIConfig()
	srv, err := NewGRPCServer(cfg, newTestService(t, cfg, nil), metrics.New(), nil)
	if err != nil {
		t.Fatalf("NewGRPCServer() error = %v", err)
	}

	lis := bufconn.Listen(1024 * 1024)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(context.Background(),
		&grpc_health_v1.HealthCheckRequest{Service: api.ServiceName})
	if err != nil {
		t.Fatalf("health check failed: %v", err)
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}

	if err := srv.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("Serve() error = %v", err)
	}
}
