// Package blockchain reads the on-chain app registry through its HTTP
// gateway and maps its listings onto canonical server records.
package blockchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://gateway.prometheusprotocol.org/"
	userAgent      = "registry-sync/blockchain"
	mediaTypeJSON  = "application/json"
)

// Canister ids of the production registry deployment.
const (
	DefaultRegistryCanister     = "grhdx-gqaaa-aaaai-q32va-cai"
	DefaultOrchestratorCanister = "ez54s-uqaaa-aaaai-q32za-cai"
	DefaultUsageTrackerCanister = "m63pw-fqaaa-aaaai-q33pa-cai"
)

// Canisters selects the registry deployment the gateway talks to.
type Canisters struct {
	Registry     string `url:"registry,omitempty"`
	Orchestrator string `url:"orchestrator,omitempty"`
	UsageTracker string `url:"usage_tracker,omitempty"`
}

// DefaultCanisters returns the production canister ids.
func DefaultCanisters() Canisters {
	return Canisters{
		Registry:     DefaultRegistryCanister,
		Orchestrator: DefaultOrchestratorCanister,
		UsageTracker: DefaultUsageTrackerCanister,
	}
}

// ErrNoDetails is returned when the gateway knows the namespace but has no
// detail record for it.
var ErrNoDetails = errors.New("no details for namespace")

// Client talks to the registry gateway.
type Client struct {
	client    *http.Client
	limiter   *rate.Limiter
	BaseURL   *url.URL
	UserAgent string
	Canisters Canisters
}

// Option configures a Client.
type Option func(*Client) error

// WithBaseURL sets the gateway URL. A trailing slash is added when missing.
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

// WithCanisters overrides the canister ids sent with detail requests.
// Empty fields keep their defaults.
func WithCanisters(ids Canisters) Option {
	return func(c *Client) error {
		if ids.Registry != "" {
			c.Canisters.Registry = ids.Registry
		}
		if ids.Orchestrator != "" {
			c.Canisters.Orchestrator = ids.Orchestrator
		}
		if ids.UsageTracker != "" {
			c.Canisters.UsageTracker = ids.UsageTracker
		}
		return nil
	}
}

// WithRateLimit caps outgoing requests per second. Zero or less disables
// the limit.
func WithRateLimit(rps float64) Option {
	return func(c *Client) error {
		if rps <= 0 {
			c.limiter = nil
			return nil
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
		return nil
	}
}

// NewClient returns a gateway client. A nil httpClient gets a client with a
// 30 second timeout.
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
		Canisters: DefaultCanisters(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// NewRequest builds a GET request for a path relative to BaseURL.
func (c *Client) NewRequest(ctx context.Context, urlStr string) (*http.Request, error) {
	u, err := c.BaseURL.Parse(urlStr)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", mediaTypeJSON)
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	return req, nil
}

// Do sends req after waiting for the rate limiter and decodes a JSON body
// into v.
func (c *Client) Do(req *http.Request, v any) error {
	ctx := req.Context()
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		return err
	}
	defer resp.Body.Close()

	if err := CheckResponse(resp); err != nil {
		return err
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s: %w", req.URL.Path, err)
	}
	return nil
}

// ErrorResponse reports a non-2xx reply from the gateway.
type ErrorResponse struct {
	Response *http.Response
	Message  string `json:"error"`
}

func (r *ErrorResponse) Error() string {
	msg := r.Message
	if msg == "" {
		msg = http.StatusText(r.Response.StatusCode)
	}
	return fmt.Sprintf("%v %v: %d %s", r.Response.Request.Method, r.Response.Request.URL.Path, r.Response.StatusCode, msg)
}

// CheckResponse returns an *ErrorResponse for any status outside 2xx.
func CheckResponse(r *http.Response) error {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return nil
	}
	errResp := &ErrorResponse{Response: r}
	data, err := io.ReadAll(io.LimitReader(r.Body, 64<<10))
	if err == nil && len(data) > 0 {
		if json.Unmarshal(data, errResp) != nil {
			errResp.Message = strings.TrimSpace(string(data))
		}
	}
	return errResp
}

// Listings returns the full app store index.
func (c *Client) Listings(ctx context.Context) ([]Listing, error) {
	req, err := c.NewRequest(ctx, "listings")
	if err != nil {
		return nil, err
	}
	var listings []Listing
	if err := c.Do(req, &listings); err != nil {
		return nil, fmt.Errorf("fetch listings: %w", err)
	}
	return listings, nil
}

// AppDetails returns the detail record of one namespace. A 404 or a null
// body yields ErrNoDetails.
func (c *Client) AppDetails(ctx context.Context, namespace string) (*AppDetails, error) {
	u, err := addOptions("apps/"+url.PathEscape(namespace), c.Canisters)
	if err != nil {
		return nil, err
	}
	req, err := c.NewRequest(ctx, u)
	if err != nil {
		return nil, err
	}
	var details *AppDetails
	if err := c.Do(req, &details); err != nil {
		var errResp *ErrorResponse
		if errors.As(err, &errResp) && errResp.Response.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: %s", ErrNoDetails, namespace)
		}
		return nil, fmt.Errorf("fetch details for %s: %w", namespace, err)
	}
	if details == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoDetails, namespace)
	}
	return details, nil
}

// addOptions appends the url-tagged fields of opts to s as query
// parameters.
func addOptions(s string, opts any) (string, error) {
	v, err := query.Values(opts)
	if err != nil {
		return s, err
	}
	u, err := url.Parse(s)
	if err != nil {
		return s, err
	}
	if q := v.Encode(); q != "" {
		if u.RawQuery != "" {
			u.RawQuery += "&" + q
		} else {
			u.RawQuery = q
		}
	}
	return u.String(), nil
}
