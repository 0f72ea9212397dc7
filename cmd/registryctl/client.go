package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/go-querystring/query"
)

type registryClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

func (c *cli) newClient() *registryClient {
	return &registryClient{
		baseURL: strings.TrimRight(c.v.GetString(keyServer), "/"),
		secret:  c.secret(),
		http: &http.Client{
			// Direct triggers run a whole sync before answering.
			Timeout: 10 * time.Minute,
		},
	}
}

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status  int
	Message string
	Details string
}

func (e *apiError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("server returned %d: %s (%s)", e.Status, e.Message, e.Details)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Error   string `json:"error"`
		Details any    `json:"details"`
	}
	if json.Unmarshal(body, &payload) != nil || payload.Error == "" {
		return &apiError{Status: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	e := &apiError{Status: resp.StatusCode, Message: payload.Error}
	switch d := payload.Details.(type) {
	case nil:
	case string:
		e.Details = d
	default:
		b, _ := json.Marshal(d)
		e.Details = string(b)
	}
	return e
}

// do sends a request and decodes a 2xx JSON answer into v.
func (c *registryClient) do(method, path string, params any, body any, auth bool, v any) error {
	u := c.baseURL + path
	if params != nil {
		vals, err := query.Values(params)
		if err != nil {
			return fmt.Errorf("encode query: %w", err)
		}
		if enc := vals.Encode(); enc != "" {
			u += "?" + enc
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal error: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, u, reader)
	if err != nil {
		return fmt.Errorf("request creation failed: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		if c.secret == "" {
			return fmt.Errorf("a secret is required (use --secret, REGISTRYCTL_SECRET or CRON_SECRET)")
		}
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if v == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode error: %w", err)
	}
	return nil
}

func (c *registryClient) getJSON(path string, params any, v any) error {
	return c.do(http.MethodGet, path, params, nil, false, v)
}

func (c *registryClient) postJSON(path string, body any, v any) error {
	return c.do(http.MethodPost, path, nil, body, true, v)
}

func escape(segment string) string {
	return url.PathEscape(segment)
}
