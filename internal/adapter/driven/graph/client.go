// Package graph implements the GraphClient port against the Meta Graph API.
package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"
	"golang.org/x/time/rate"

	"github.com/ericfisherdev/insightpanel/internal/domain/port/driven"
)

const (
	defaultBaseURL = "https://graph.facebook.com"
	defaultVersion = "v16.0"

	// requestTimeout bounds each Graph call on its own; calls share no deadline.
	requestTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response is read.
	maxErrorBody = 64 << 10
)

// Compile-time interface satisfaction check.
var _ driven.GraphClient = (*Client)(nil)

// Options configures a Client.
type Options struct {
	// Version is the Graph API version path segment, e.g. "v16.0".
	Version string
	// AppID and AppSecret are only needed for token exchange.
	AppID     string
	AppSecret string
	// RequestsPerSecond paces outbound calls across all accounts. Zero means unlimited.
	RequestsPerSecond float64
}

// Client implements driven.GraphClient over plain HTTPS+JSON.
type Client struct {
	http      *http.Client
	baseURL   *url.URL
	version   string
	appID     string
	appSecret string
	limiter   *rate.Limiter
}

// NewClient creates a Graph API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching, in memory)
//  2. rate.Limiter pacing every outbound request
func NewClient(opts Options) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	base, _ := url.Parse(defaultBaseURL)
	return newClient(&http.Client{Transport: cacheTransport}, base, opts)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string, opts Options) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	return newClient(httpClient, u, opts), nil
}

func newClient(httpClient *http.Client, base *url.URL, opts Options) *Client {
	version := strings.Trim(opts.Version, "/")
	if version == "" {
		version = defaultVersion
	}

	limit := rate.Inf
	burst := 1
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
		burst = max(1, int(opts.RequestsPerSecond))
	}

	return &Client{
		http:      httpClient,
		baseURL:   base,
		version:   version,
		appID:     opts.AppID,
		appSecret: opts.AppSecret,
		limiter:   rate.NewLimiter(limit, burst),
	}
}

// APIError is an error body returned by the Graph API.
type APIError struct {
	StatusCode int
	Message    string
	Type       string
	Code       int
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("graph api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("graph api: status %d: %s (type=%s code=%d)", e.StatusCode, e.Message, e.Type, e.Code)
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// get performs a GET against path (relative to the versioned base) and decodes
// the JSON response into out. The access token travels in the query string,
// so errors returned here never include the request URL.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("graph %s: %w", path, err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	u := c.baseURL.JoinPath(c.version, path)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("graph %s: build request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return fmt.Errorf("graph %s: %w", path, err)
	}
	defer resp.Body.Close()

	slog.Debug("graph api call",
		"path", path,
		"status", resp.StatusCode,
		"cached", resp.Header.Get(httpcache.XFromCache) != "",
		"duration", time.Since(start).Round(time.Millisecond),
	)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("graph %s: %w", path, decodeAPIError(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("graph %s: decode response: %w", path, err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body errorBody
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && json.Unmarshal(data, &body) == nil {
		apiErr.Message = body.Error.Message
		apiErr.Type = body.Error.Type
		apiErr.Code = body.Error.Code
	}
	return apiErr
}

// tokenParams returns query parameters carrying the access token plus any
// extra key/value pairs.
func tokenParams(token string, kv ...string) url.Values {
	v := url.Values{}
	v.Set("access_token", token)
	for i := 0; i+1 < len(kv); i += 2 {
		v.Set(kv[i], kv[i+1])
	}
	return v
}
