package provider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

const chartFixture = `{"chart":{"result":[{
  "meta":{"symbol":"ETH-USD","gmtoffset":0},
  "timestamp":[1704153600,1704067200,1704153600,1704240000,1704326400,1704412800],
  "indicators":{
    "quote":[{
      "open":[2,1,2.1,3,4,5],
      "high":[2.5,1.5,2.6,3.5,4.5,null],
      "low":[1.5,0.5,1.6,2.5,3.5,4.5],
      "close":[2.2,1.2,2.3,null,4.2,5.2],
      "volume":[20,10,21,30,null,50]
    }],
    "adjclose":[{"adjclose":[2.2,1.2,2.3,null,4.2,5.2]}]
  }
}],"error":null}}`

func newTestYahoo(t *testing.T, status int, body string, check func(*http.Request)) *YahooProvider {
	t.Helper()
	p := NewYahooProvider(trace.NewNoopTracerProvider().Tracer("test"))
	p.baseURL = "http://example"
	p.limiter = NewRateLimiter(10, time.Millisecond)
	p.client = &http.Client{
		Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if check != nil {
				check(req)
			}
			return &http.Response{
				StatusCode: status,
				Body:       io.NopCloser(bytes.NewReader([]byte(body))),
				Header:     make(http.Header),
			}, nil
		}),
	}
	return p
}

func TestYahooFetchBarsSanitizes(t *testing.T) {
	t.Parallel()

	p := newTestYahoo(t, http.StatusOK, chartFixture, func(req *http.Request) {
		if !strings.HasSuffix(req.URL.Path, "/v8/finance/chart/ETH-USD") {
			t.Errorf("unexpected path: %s", req.URL.Path)
		}
		if req.URL.Query().Get("interval") != "1d" || req.URL.Query().Get("period1") == "" {
			t.Errorf("unexpected query: %s", req.URL.RawQuery)
		}
	})

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars, err := p.FetchBars(context.Background(), "ETH-USD", "1d", start, time.Time{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 2024-01-02 appears twice (last wins); the null-close, null-volume and null-high
	// rows drop.
	if len(bars) != 2 {
		t.Fatalf("expected 2 bars, got %d: %+v", len(bars), bars)
	}
	if !bars[0].Date.Equal(start) || bars[0].Close != 1.2 {
		t.Fatalf("unexpected first bar %+v", bars[0])
	}
	if bars[1].Close != 2.3 || bars[1].Volume != 21 {
		t.Fatalf("expected the later duplicate to win, got %+v", bars[1])
	}
	if bars[1].AdjClose == nil || *bars[1].AdjClose != 2.3 {
		t.Fatalf("expected adj close, got %v", bars[1].AdjClose)
	}
}

func TestYahooFetchBarsErrors(t *testing.T) {
	t.Parallel()

	p := newTestYahoo(t, http.StatusOK, `{"chart":{"result":[],"error":null}}`, nil)
	if _, err := p.FetchBars(context.Background(), "NOPE", "1d", time.Time{}, time.Time{}); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}

	p = newTestYahoo(t, http.StatusOK, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`, nil)
	if _, err := p.FetchBars(context.Background(), "NOPE", "1d", time.Time{}, time.Time{}); err == nil || !strings.Contains(err.Error(), "Not Found") {
		t.Fatalf("expected chart error, got %v", err)
	}

	p = newTestYahoo(t, http.StatusTooManyRequests, "slow down", nil)
	if _, err := p.FetchBars(context.Background(), "ETH-USD", "1d", time.Time{}, time.Time{}); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}

	if _, err := p.FetchBars(context.Background(), "ETH-USD", "5m", time.Time{}, time.Time{}); !errors.Is(err, ErrUnsupportedInterval) {
		t.Fatalf("expected ErrUnsupportedInterval, got %v", err)
	}
}

func TestSessionDateUsesExchangeOffset(t *testing.T) {
	// 05:00 UTC is local midnight five hours west and the previous evening six hours west.
	ts := time.Date(2024, 1, 2, 5, 0, 0, 0, time.UTC).Unix()
	got := sessionDate(ts, -5*3600)
	if want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
	got = sessionDate(ts, -6*3600)
	if want := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
