package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"trendr/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const yahooBaseURL = "https://query1.finance.yahoo.com"

var (
	ErrNoData              = errors.New("no price data returned")
	ErrUnsupportedInterval = errors.New("unsupported interval")
)

// YahooProvider downloads daily/weekly/monthly OHLCV history from the Yahoo Finance
// chart endpoint.
type YahooProvider struct {
	client    *http.Client
	baseURL   string
	tracer    trace.Tracer
	limiter   *RateLimiter
	userAgent string
}

// NewYahooProvider limits itself to 30 requests per minute.
func NewYahooProvider(tracer trace.Tracer) *YahooProvider {
	return &YahooProvider{
		client:    &http.Client{Timeout: 30 * time.Second},
		baseURL:   yahooBaseURL,
		tracer:    tracer,
		limiter:   NewRateLimiter(5, 2*time.Second),
		userAgent: "Mozilla/5.0 (compatible; trendr/1.0)",
	}
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

// FetchBars returns unadjusted bars from start (inclusive) to end, sanitized: sorted,
// de-duplicated by date keeping the last row, rows without close or volume dropped.
// A zero end means now.
func (p *YahooProvider) FetchBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]domain.PriceBar, error) {
	ctx, span := p.tracer.Start(ctx, "yahoo.fetch-bars")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.String("interval", interval))

	if !domain.IsSupportedInterval(interval) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedInterval, interval)
	}
	if end.IsZero() {
		end = time.Now().UTC()
	}

	q := url.Values{}
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	q.Set("interval", interval)
	q.Set("events", "history")
	q.Set("includeAdjustedClose", "true")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", p.baseURL, url.PathEscape(symbol), q.Encode())

	body, err := p.doRequest(ctx, endpoint)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("fetch %s: %w", symbol, err)
	}

	var raw chartResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse chart for %s: %w", symbol, err)
	}
	if raw.Chart.Error != nil {
		return nil, fmt.Errorf("yahoo chart error for %s: %s: %s", symbol, raw.Chart.Error.Code, raw.Chart.Error.Description)
	}
	if len(raw.Chart.Result) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoData, symbol)
	}

	bars := Sanitize(barsFromChart(raw.Chart.Result[0]))
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w for %s after sanitizing", ErrNoData, symbol)
	}
	span.SetAttributes(attribute.Int("bars", len(bars)))
	return bars, nil
}

// Sanitize drops rows without a finite close and volume, sorts by date and keeps the
// last row for each date.
func Sanitize(bars []domain.PriceBar) []domain.PriceBar {
	return domain.SortAndDedupe(bars)
}

func barsFromChart(res chartResult) []domain.PriceBar {
	if len(res.Indicators.Quote) == 0 {
		return nil
	}
	quote := res.Indicators.Quote[0]
	var adj []*float64
	if len(res.Indicators.AdjClose) > 0 {
		adj = res.Indicators.AdjClose[0].AdjClose
	}

	bars := make([]domain.PriceBar, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		closeVal := at(quote.Close, i)
		if math.IsNaN(closeVal) {
			continue
		}
		b := domain.PriceBar{
			Date:   sessionDate(ts, res.Meta.GMTOffset),
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  closeVal,
			Volume: at(quote.Volume, i),
		}
		if v := at(adj, i); !math.IsNaN(v) {
			b.AdjClose = &v
		}
		bars = append(bars, b)
	}
	return bars
}

// sessionDate maps a bar timestamp to its trading day at UTC midnight, using the
// exchange offset so a session that opens late evening UTC keeps its local date.
func sessionDate(ts, gmtOffset int64) time.Time {
	local := time.Unix(ts+gmtOffset, 0).UTC()
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

func at(values []*float64, i int) float64 {
	if i >= len(values) || values[i] == nil {
		return math.NaN()
	}
	return *values[i]
}

func (p *YahooProvider) doRequest(ctx context.Context, endpoint string) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNoData
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("yahoo API error %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}
