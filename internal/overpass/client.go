package overpass

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/paulmach/osm"

	"github.com/joeblew999/plat-massing/internal/geo"
	"github.com/joeblew999/plat-massing/internal/metrics"
)

// DefaultEndpoint is the public Overpass interpreter.
const DefaultEndpoint = "http://overpass-api.de/api/interpreter"

// DefaultTimeout is the server-side query timeout.
const DefaultTimeout = 25 * time.Second

// timeoutGrace is added to the query timeout to bound the HTTP wait, so the
// server gets to report its own timeout first.
const timeoutGrace = 5 * time.Second

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// DefaultFilters selects building footprints.
var DefaultFilters = []string{"building"}

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Cache stores raw responses keyed by query. Implemented by cache.Cache.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
}

// Config holds fetcher settings.
type Config struct {
	Endpoint string
	Filters  []string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Client fetches raw map documents from an Overpass API.
type Client struct {
	cfg    Config
	http   Doer
	cache  Cache
	logger *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(d Doer) Option {
	return func(c *Client) { c.http = d }
}

// WithCache enables response caching.
func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLogger sets the logger for status messages.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a new Overpass client, filling unset config fields with defaults.
func NewClient(cfg Config, opts ...Option) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Filters == nil {
		cfg.Filters = DefaultFilters
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Timeout returns the configured query timeout.
func (c *Client) Timeout() time.Duration {
	return c.cfg.Timeout
}

// Fetch queries every element matching the configured filters inside bbox.
// It blocks until the response arrives or the timeout elapses. It does not retry.
func (c *Client) Fetch(ctx context.Context, bbox geo.BoundingBox) (*osm.OSM, error) {
	query := BuildQuery(bbox, c.cfg.Filters, c.cfg.Timeout)
	key := cacheKey(query)

	if body, ok := c.fromCache(ctx, key); ok {
		return decode(body)
	}

	start := time.Now()
	body, err := c.do(ctx, query)
	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.FetchErrors.Inc()
		return nil, err
	}

	doc, err := decode(body)
	if err != nil {
		metrics.FetchErrors.Inc()
		return nil, err
	}

	c.toCache(ctx, key, body)
	return doc, nil
}

func (c *Client) do(ctx context.Context, query string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout+timeoutGrace)
	defer cancel()

	u := c.cfg.Endpoint + "?" + url.Values{"data": []string{query}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &DataSourceError{Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("overpass request", "endpoint", c.cfg.Endpoint, "query", query)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &DataSourceError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &DataSourceError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
			Body:       string(snippet),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DataSourceError{Err: fmt.Errorf("reading response: %w", err)}
	}
	return body, nil
}

func (c *Client) fromCache(ctx context.Context, key string) ([]byte, bool) {
	if c.cache == nil {
		return nil, false
	}
	body, err := c.cache.Get(ctx, key)
	if err != nil || len(body) == 0 {
		metrics.CacheMisses.Inc()
		return nil, false
	}
	metrics.CacheHits.Inc()
	c.logger.Debug("overpass cache hit", "key", key)
	return body, true
}

func (c *Client) toCache(ctx context.Context, key string, body []byte) {
	if c.cache == nil || c.cfg.CacheTTL <= 0 {
		return
	}
	if err := c.cache.Set(ctx, key, body, int(c.cfg.CacheTTL.Seconds())); err != nil {
		c.logger.Warn("overpass cache write failed", "error", err)
	}
}

func cacheKey(query string) string {
	sum := sha256.Sum256([]byte(query))
	return "overpass:" + hex.EncodeToString(sum[:])
}
