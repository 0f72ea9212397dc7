// Package official pages through the official MCP registry and maps its
// remote-capable servers onto canonical records.
package official

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang/glog"
	"github.com/google/go-querystring/query"
	registryv0 "github.com/modelcontextprotocol/registry/pkg/api/v0"
)

const (
	defaultBaseURL = "https://registry.modelcontextprotocol.io/"
	userAgent      = "registry-sync/official"
	mediaTypeJSON  = "application/json"
	serversPath    = "v0/servers"

	// DefaultPageSize is the page size requested from the registry.
	DefaultPageSize = 100
	// maxPages stops a paging loop against a misbehaving registry.
	maxPages = 1000
)

// Client reads the official registry's v0 API.
type Client struct {
	client    *http.Client
	BaseURL   *url.URL
	UserAgent string
	PageSize  int
}

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL sets the registry URL. A trailing slash is added when
// missing.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) error {
		if baseURL == "" {
			return fmt.Errorf("base URL cannot be empty")
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return fmt.Errorf("invalid base URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("base URL must use HTTP or HTTPS scheme, got: %s", u.Scheme)
		}
		if !strings.HasSuffix(u.Path, "/") {
			u.Path += "/"
		}
		c.BaseURL = u
		return nil
	}
}

// WithPageSize sets the page size requested per call.
func WithPageSize(n int) Option {
	return func(c *Client) error {
		if n < 1 || n > 100 {
			return fmt.Errorf("page size must be between 1 and 100, got %d", n)
		}
		c.PageSize = n
		return nil
	}
}

// NewClient returns a registry client. A nil httpClient gets a client with
// a 30 second timeout.
func NewClient(httpClient *http.Client, opts ...Option) (*Client, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	baseURL, err := url.Parse(defaultBaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse default base URL: %w", err)
	}
	c := &Client{
		client:    httpClient,
		BaseURL:   baseURL,
		UserAgent: userAgent,
		PageSize:  DefaultPageSize,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ListOptions are the paging parameters of the servers endpoint.
type ListOptions struct {
	Cursor string `url:"cursor,omitempty"`
	Limit  int    `url:"limit,omitempty"`
}

// ErrorResponse reports a non-2xx reply from the registry.
type ErrorResponse struct {
	Response *http.Response
	Message  string
}

func (r *ErrorResponse) Error() string {
	return fmt.Sprintf("%v %v: %d %s", r.Response.Request.Method, r.Response.Request.URL.Path, r.Response.StatusCode, r.Message)
}

// CheckResponse returns an *ErrorResponse for any status outside 2xx.
func CheckResponse(r *http.Response) error {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(r.StatusCode)
	}
	return &ErrorResponse{Response: r, Message: msg}
}

// List fetches one page of servers.
func (c *Client) List(ctx context.Context, opts *ListOptions) (*registryv0.ServerListResponse, error) {
	u := serversPath
	if opts != nil {
		v, err := query.Values(opts)
		if err != nil {
			return nil, err
		}
		if q := v.Encode(); q != "" {
			u += "?" + q
		}
	}
	ref, err := c.BaseURL.Parse(u)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", mediaTypeJSON)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return nil, err
	}
	defer resp.Body.Close()

	if err := CheckResponse(resp); err != nil {
		return nil, err
	}
	var page registryv0.ServerListResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode server list: %w", err)
	}
	return &page, nil
}

// ListAll follows next cursors until the registry reports no more pages.
func (c *Client) ListAll(ctx context.Context) ([]registryv0.ServerResponse, error) {
	var all []registryv0.ServerResponse
	seen := map[string]bool{}
	opts := &ListOptions{Limit: c.PageSize}
	for page := 0; page < maxPages; page++ {
		resp, err := c.List(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("fetch servers page %d: %w", page+1, err)
		}
		all = append(all, resp.Servers...)
		glog.V(1).Infof("Fetched %d servers. Total so far: %d", len(resp.Servers), len(all))

		next := resp.Metadata.NextCursor
		if next == "" {
			return all, nil
		}
		if seen[next] {
			return nil, fmt.Errorf("registry returned cursor %q twice", next)
		}
		seen[next] = true
		opts.Cursor = next
	}
	return nil, fmt.Errorf("registry pagination exceeded %d pages", maxPages)
}
