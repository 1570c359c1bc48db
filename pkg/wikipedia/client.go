// Package wikipedia provides a client for the Wikipedia REST and action
// APIs used by the encyclopedic lookup source.
package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
)

// ErrNotFound is returned when no page exists for a title.
var ErrNotFound = eris.New("wikipedia: page not found")

// Client defines the Wikipedia lookups.
type Client interface {
	// Summary fetches the REST summary for an exact page title.
	Summary(ctx context.Context, title string) (*Page, error)
	// Search runs a full-text search and returns matching titles.
	Search(ctx context.Context, query string) ([]SearchHit, error)
}

// Page holds the summary data for one article.
type Page struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Extract     string `json:"extract"`
	URL         string `json:"url"`
}

// SearchHit is one full-text search match.
type SearchHit struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
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
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a Wikipedia client. The user agent is required by the
// Wikimedia API policy.
func NewClient(userAgent string, opts ...Option) Client {
	c := &httpClient{
		baseURL:   "https://en.wikipedia.org",
		userAgent: userAgent,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) get(ctx context.Context, reqURL string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, eris.Wrap(err, "wikipedia: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, eris.Wrap(err, "wikipedia: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, eris.Wrap(err, "wikipedia: read response")
	}
	return body, resp.StatusCode, nil
}

func (c *httpClient) Summary(ctx context.Context, title string) (*Page, error) {
	reqURL := fmt.Sprintf("%s/api/rest_v1/page/summary/%s", c.baseURL, url.PathEscape(title))
	body, status, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("wikipedia: unexpected status %d", status)
	}

	var raw struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Extract     string `json:"extract"`
		ContentURLs struct {
			Desktop struct {
				Page string `json:"page"`
			} `json:"desktop"`
		} `json:"content_urls"`
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "wikipedia: decode summary")
	}
	if raw.Type == "disambiguation" {
		return nil, ErrNotFound
	}

	return &Page{
		Title:       raw.Title,
		Description: raw.Description,
		Extract:     raw.Extract,
		URL:         raw.ContentURLs.Desktop.Page,
	}, nil
}

func (c *httpClient) Search(ctx context.Context, query string) ([]SearchHit, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {"5"},
		"format":   {"json"},
	}
	body, status, err := c.get(ctx, fmt.Sprintf("%s/w/api.php?%s", c.baseURL, params.Encode()))
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, eris.Errorf("wikipedia: unexpected search status %d", status)
	}

	var raw struct {
		Query struct {
			Search []SearchHit `json:"search"`
		} `json:"query"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, eris.Wrap(err, "wikipedia: decode search")
	}
	return raw.Query.Search, nil
}
