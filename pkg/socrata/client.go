package socrata

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bluele/gcache"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ctaridership/pkg/metrics"
	ctaotel "ctaridership/pkg/otel"
)

const (
	// DefaultRowLimit is the largest number of rows fetched per dataset.
	DefaultRowLimit = 50000

	tokenHeader = "X-App-Token"
	userAgent   = "ctaridership/1.0.0"
)

// ErrStatus is returned when the API answers with a non-2xx status.
var ErrStatus = errors.New("socrata: unexpected status")

// Client fetches rows from Socrata resource endpoints.
type Client struct {
	httpClient *http.Client
	token      string
	rowLimit   int
	pageSize   int
	cache      gcache.Cache
	tracer     trace.Tracer
}

// Options tune a Client. Zero values fall back to the defaults.
type Options struct {
	Token    string
	RowLimit int
	PageSize int
	CacheTTL time.Duration
	Timeout  time.Duration
}

// Table is a CSV response: a header and its data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// Records returns the header followed by the rows.
func (t *Table) Records() [][]string {
	out := make([][]string, 0, len(t.Rows)+1)
	out = append(out, t.Header)
	return append(out, t.Rows...)
}

func NewClient(opts Options) *Client {
	if opts.RowLimit <= 0 {
		opts.RowLimit = DefaultRowLimit
	}
	if opts.PageSize <= 0 || opts.PageSize > opts.RowLimit {
		opts.PageSize = opts.RowLimit
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	// Create HTTP client with OpenTelemetry instrumentation
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   opts.Timeout,
	}

	return &Client{
		httpClient: client,
		token:      opts.Token,
		rowLimit:   opts.RowLimit,
		pageSize:   opts.PageSize,
		cache:      gcache.New(64).LRU().Expiration(opts.CacheTTL).Build(),
		tracer:     otel.Tracer("socrata-client"),
	}
}

// FetchCSV pages through a CSV endpoint until a short page or the row limit.
// Header rows of later pages are dropped.
func (c *Client) FetchCSV(ctx context.Context, endpoint string, params url.Values) (*Table, error) {
	ctx, span := c.tracer.Start(ctx, "socrata.fetch_csv",
		trace.WithAttributes(attribute.String("api.endpoint", endpoint)),
	)
	defer span.End()

	key := cacheKey("csv", endpoint, params)
	if cached, err := c.cache.Get(key); err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached.(*Table), nil
	}

	table := &Table{}
	for offset := 0; offset < c.rowLimit; offset += c.pageSize {
		body, err := c.get(ctx, endpoint, c.pageParams(params, offset))
		if err != nil {
			ctaotel.RecordError(span, err, errorType(err), false)
			return nil, err
		}

		records, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
		if err != nil {
			ctaotel.RecordError(span, err, ctaotel.ErrorTypeParse, false)
			return nil, fmt.Errorf("failed to parse CSV response: %w", err)
		}
		if len(records) == 0 {
			break
		}
		if table.Header == nil {
			table.Header = records[0]
		}
		page := records[1:]
		table.Rows = append(table.Rows, page...)

		if len(page) < c.pageSize {
			break
		}
	}

	c.warnIfTruncated(endpoint, len(table.Rows))
	span.SetAttributes(attribute.Int("rows", len(table.Rows)))
	ctaotel.SetSpanOk(span)

	_ = c.cache.Set(key, table)
	return table, nil
}

// FetchJSON pages through a JSON endpoint. A page that fails to decode is
// logged and the whole dataset is treated as empty.
func (c *Client) FetchJSON(ctx context.Context, endpoint string, params url.Values) ([]map[string]interface{}, error) {
	ctx, span := c.tracer.Start(ctx, "socrata.fetch_json",
		trace.WithAttributes(attribute.String("api.endpoint", endpoint)),
	)
	defer span.End()

	key := cacheKey("json", endpoint, params)
	if cached, err := c.cache.Get(key); err == nil {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return cached.([]map[string]interface{}), nil
	}

	var rows []map[string]interface{}
	for offset := 0; offset < c.rowLimit; offset += c.pageSize {
		body, err := c.get(ctx, endpoint, c.pageParams(params, offset))
		if err != nil {
			ctaotel.RecordError(span, err, errorType(err), false)
			return nil, err
		}

		var page []map[string]interface{}
		if err := json.Unmarshal(body, &page); err != nil {
			span.RecordError(err)
			slog.Warn("Malformed JSON from Socrata, treating dataset as empty",
				"endpoint", endpoint, "offset", offset, "discarded_rows", len(rows), "error", err)
			rows = nil
			break
		}
		rows = append(rows, page...)

		if len(page) < c.pageSize {
			break
		}
	}

	c.warnIfTruncated(endpoint, len(rows))
	span.SetAttributes(attribute.Int("rows", len(rows)))
	ctaotel.SetSpanOk(span)

	_ = c.cache.Set(key, rows)
	return rows, nil
}

func (c *Client) get(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	if c.token != "" {
		req.Header.Set(tokenHeader, c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.SocrataRequestsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", "error")))
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	metrics.SocrataRequestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", strconv.Itoa(resp.StatusCode)),
	))
	metrics.SocrataRequestDuration.Record(ctx, time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Read the error response body for debugging
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w %d from %s: %s", ErrStatus, resp.StatusCode, endpoint, string(body))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	metrics.SocrataResponseBodySize.Record(ctx, int64(len(body)))

	return body, nil
}

func (c *Client) pageParams(params url.Values, offset int) url.Values {
	q := url.Values{}
	for k, v := range params {
		q[k] = append([]string(nil), v...)
	}
	limit := c.pageSize
	if remaining := c.rowLimit - offset; remaining < limit {
		limit = remaining
	}
	q.Set("$limit", strconv.Itoa(limit))
	if offset > 0 {
		q.Set("$offset", strconv.Itoa(offset))
	}
	return q
}

// warnIfTruncated flags a fetch that stopped exactly at the row limit;
// the dataset may hold more rows than were read.
func (c *Client) warnIfTruncated(endpoint string, rows int) {
	if rows >= c.rowLimit {
		slog.Warn("Socrata fetch reached the row limit, results may be truncated",
			"endpoint", endpoint, "row_limit", c.rowLimit)
	}
}

func cacheKey(kind, endpoint string, params url.Values) string {
	return kind + " " + endpoint + "?" + params.Encode()
}

func errorType(err error) string {
	if errors.Is(err, ErrStatus) {
		return ctaotel.ErrorTypeHTTP
	}
	return ctaotel.ErrorTypeNetwork
}
