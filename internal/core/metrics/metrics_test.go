package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/ratekeeper/internal/rules"
)

type fakeCache struct{ stats rules.CacheStats }

func (f *fakeCache) Stats() rules.CacheStats { return f.stats }

func TestRecordQuote(t *testing.T) {
	m := New()
	m.RecordQuote("insurance", "ok", 10*time.Millisecond)
	m.RecordQuote("insurance", "ok", 10*time.Millisecond)
	m.RecordQuote("insurance", "invalid_argument", time.Millisecond)

	if got := testutil.ToFloat64(m.QuotesTotal.WithLabelValues("insurance", "ok")); got != 2 {
		t.Errorf("ok count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.QuotesTotal.WithLabelValues("insurance", "invalid_argument")); got != 1 {
		t.Errorf("invalid_argument count = %v, want 1", got)
	}
}

func TestRegisterCache(t *testing.T) {
	m := New()
	src := &fakeCache{stats: rules.CacheStats{Hits: 7, Misses: 2, Entries: 2}}
	m.RegisterCache(src)

	body := scrape(t, m)
	for _, want := range []string{
		"ratekeeper_compile_cache_hits_total 7",
		"ratekeeper_compile_cache_misses_total 2",
		"ratekeeper_compile_cache_entries 2",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}

	src.stats.Hits = 9
	if !strings.Contains(scrape(t, m), "ratekeeper_compile_cache_hits_total 9") {
		t.Error("cache counters not read at scrape time")
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	m := New()
	intercept := m.UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/ratekeeper.quote.v1.QuoteAPI/QuoteInsurance"}

	_, _ = intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return "ok", nil
	})
	_, _ = intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.InvalidArgument, "bad")
	})
	_, _ = intercept(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		return nil, errors.New("plain")
	})

	for code, want := range map[string]float64{"OK": 1, "InvalidArgument": 1, "Unknown": 1} {
		if got := testutil.ToFloat64(m.GRPCRequestsTotal.WithLabelValues("QuoteInsurance", code)); got != want {
			t.Errorf("%s count = %v, want %v", code, got, want)
		}
	}
}

func TestRecordHTTP(t *testing.T) {
	m := New()
	m.RecordHTTP("POST", "/v1/quotes/insurance", 200, time.Millisecond)
	if got := testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("POST", "/v1/quotes/insurance", "200")); got != 1 {
		t.Errorf("count = %v, want 1", got)
	}
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(body)
}
