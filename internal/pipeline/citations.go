package pipeline

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"

	"github.com/foundry-bot/partner-research/internal/adapter"
	"github.com/foundry-bot/partner-research/internal/model"
	"github.com/foundry-bot/partner-research/internal/resilience"
	"github.com/foundry-bot/partner-research/pkg/wikipedia"
)

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>\)\]]+`)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// expandCitations runs Stage 2: harvest citation URLs from the collection
// records, filter and cap them, then fetch each page with bounded
// concurrency and an inter-batch delay for politeness.
func (o *Orchestrator) expandCitations(ctx context.Context, subject model.Subject, opts model.ResearchOptions, result *model.RunResult) (map[string]any, error) {
	urls := o.harvestCitations(result.Records)
	if len(urls) == 0 {
		return map[string]any{"harvested": 0, "fetched": 0}, nil
	}

	limit := o.cfg.Crawl.MaxCitations
	if opts.MaxCitations > 0 {
		limit = opts.MaxCitations
	}
	if len(urls) > limit {
		urls = urls[:limit]
	}

	workers := o.cfg.Crawl.Workers
	if workers <= 0 {
		workers = 1
	}
	batchDelay := time.Duration(o.cfg.Crawl.BatchDelayMillis) * time.Millisecond

	var mu sync.Mutex
	fetched := 0
	record := func(res adapter.Result) {
		mu.Lock()
		defer mu.Unlock()
		rec := o.persistResult(ctx, subject, res)
		result.Records = append(result.Records, *rec)
		if res.Success {
			fetched++
		} else {
			result.AddError(stageCitations, res.Source, res.ErrorKind, res.Err)
		}
	}

	// Fresh errgroup per batch so the politeness delay separates full
	// waves of fetches rather than individual ones.
	for start := 0; start < len(urls); start += workers {
		if start > 0 && batchDelay > 0 {
			select {
			case <-ctx.Done():
				return map[string]any{"harvested": len(urls), "fetched": fetched}, ctx.Err()
			case <-time.After(batchDelay):
			}
		}

		end := start + workers
		if end > len(urls) {
			end = len(urls)
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, citationURL := range urls[start:end] {
			g.Go(func() error {
				record(o.fetchCitation(gCtx, citationURL))
				return nil
			})
		}
		_ = g.Wait()
	}

	return map[string]any{"harvested": len(urls), "fetched": fetched}, nil
}

// harvestCitations pulls URL-like strings out of the successful collection
// payloads, de-duplicates them, and drops blocked or non-allowlisted
// domains. Order follows record order, so higher-priority sources get
// their citations fetched first under the cap.
func (o *Orchestrator) harvestCitations(records []model.ResearchRecord) []string {
	seen := make(map[string]bool)
	var urls []string

	add := func(raw string) {
		raw = strings.TrimRight(strings.TrimSpace(raw), ".,;")
		parsed, err := url.Parse(raw)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return
		}
		if seen[raw] || !o.domainAllowed(parsed.Host) {
			return
		}
		seen[raw] = true
		urls = append(urls, raw)
	}

	for _, rec := range records {
		if rec.Status != model.RecordSuccess || model.IsCitationSource(rec.Source) {
			continue
		}
		switch cites := rec.Payload["citations"].(type) {
		case []string:
			for _, c := range cites {
				add(c)
			}
		case []any:
			for _, c := range cites {
				if s, ok := c.(string); ok {
					add(s)
				}
			}
		}
		for _, match := range urlPattern.FindAllString(rec.Raw, -1) {
			add(match)
		}
	}
	return urls
}

func (o *Orchestrator) domainAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, blocked := range o.cfg.Crawl.BlockedDomains {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return false
		}
	}
	if len(o.cfg.Crawl.AllowedDomains) == 0 {
		return true
	}
	for _, allowed := range o.cfg.Crawl.AllowedDomains {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}

// fetchCitation retrieves one citation page. Wikipedia URLs go through the
// API client for a clean extract; everything else goes through the reader
// service, falling back to a direct fetch when the reader is unavailable.
func (o *Orchestrator) fetchCitation(ctx context.Context, citationURL string) adapter.Result {
	parsed, err := url.Parse(citationURL)
	if err != nil {
		return adapter.Failure("citation", citationURL, model.KindInvalidInput, err.Error())
	}
	source := model.CitationSource(strings.ToLower(parsed.Host))

	timeout := time.Duration(o.cfg.Crawl.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if strings.HasSuffix(strings.ToLower(parsed.Host), "wikipedia.org") {
		return o.fetchWikipediaCitation(fetchCtx, source, citationURL, parsed)
	}

	resp, err := o.reader.Read(fetchCtx, citationURL)
	if err == nil && resp.Data.Content != "" {
		return adapter.Result{
			Success: true,
			Source:  source,
			Query:   citationURL,
			Data: map[string]any{
				"title": resp.Data.Title,
				"url":   citationURL,
			},
			Raw: resp.Data.Content,
		}
	}
	if err != nil {
		zap.L().Debug("citations: reader fetch failed, trying direct",
			zap.String("url", citationURL),
			zap.Error(err),
		)
	}

	body, err := o.fetchDirect(fetchCtx, citationURL)
	if err != nil {
		return adapter.Failure(source, citationURL, resilience.KindOf(err), err.Error())
	}
	return adapter.Result{
		Success: true,
		Source:  source,
		Query:   citationURL,
		Data:    map[string]any{"url": citationURL},
		Raw:     body,
	}
}

func (o *Orchestrator) fetchWikipediaCitation(ctx context.Context, source, citationURL string, parsed *url.URL) adapter.Result {
	title := strings.TrimPrefix(parsed.Path, "/wiki/")
	title, _ = url.PathUnescape(title)
	if title == "" || strings.Contains(title, "/") {
		return adapter.Failure(source, citationURL, model.KindInvalidInput, "not an article url")
	}

	page, err := o.wiki.Summary(ctx, strings.ReplaceAll(title, "_", " "))
	if err != nil {
		if eris.Is(err, wikipedia.ErrNotFound) {
			return adapter.Failure(source, citationURL, model.KindFetchError, "article not found")
		}
		return adapter.Failure(source, citationURL, resilience.KindOf(err), err.Error())
	}
	return adapter.Result{
		Success: true,
		Source:  source,
		Query:   citationURL,
		Data: map[string]any{
			"title":       page.Title,
			"description": page.Description,
			"url":         page.URL,
		},
		Raw: page.Extract,
	}
}

// fetchDirect performs a plain GET and decodes the body using the charset
// declared in the response headers. Markup is stripped so downstream
// scoring sees prose, not tag soup.
func (o *Orchestrator) fetchDirect(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", eris.Wrap(err, "citations: build request")
	}
	req.Header.Set("User-Agent", o.cfg.Wikipedia.UserAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "citations: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", &resilience.TransientError{
			Err:        fmt.Errorf("citations: fetch returned %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	var reader io.Reader = io.LimitReader(resp.Body, 1<<20)
	if enc := responseEncoding(resp.Header.Get("Content-Type")); enc != "" && enc != "utf-8" {
		if e, encErr := htmlindex.Get(enc); encErr == nil {
			reader = transform.NewReader(reader, e.NewDecoder())
		}
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		return "", eris.Wrap(err, "citations: read body")
	}
	return strings.TrimSpace(tagPattern.ReplaceAllString(string(body), " ")), nil
}

func responseEncoding(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(params["charset"])
}
