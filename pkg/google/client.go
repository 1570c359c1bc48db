// Package google provides a client for the Google Custom Search JSON API.
package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// Client performs Custom Search queries.
type Client interface {
	Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error)
}

// SearchResponse is the parsed Custom Search result set.
type SearchResponse struct {
	Items []Item `json:"items"`
}

// Item represents one search result.
type Item struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// SearchOption configures a search request.
type SearchOption func(*searchOpts)

type searchOpts struct {
	site string
}

// WithSite restricts the search to a single site.
func WithSite(site string) SearchOption {
	return func(o *searchOpts) {
		o.site = site
	}
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	cx      string
	baseURL string
	http    *http.Client
}

// NewClient creates a Custom Search client bound to an engine (cx).
func NewClient(apiKey, cx string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		cx:      cx,
		baseURL: "https://www.googleapis.com/customsearch/v1",
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string, opts ...SearchOption) (*SearchResponse, error) {
	var so searchOpts
	for _, opt := range opts {
		opt(&so)
	}

	params := url.Values{
		"key": {c.apiKey},
		"cx":  {c.cx},
		"q":   {query},
	}
	if so.site != "" {
		params.Set("siteSearch", so.site)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("google: unexpected status %d", resp.StatusCode)
	}

	var result SearchResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, eris.Wrap(err, "google: decode response")
	}
	return &result, nil
}
