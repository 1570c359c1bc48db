package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/foundry-bot/partner-research/internal/model"
	"github.com/foundry-bot/partner-research/internal/resilience"
	"github.com/foundry-bot/partner-research/pkg/jina"
)

// retryConfig is the shared adapter retry policy.
func retryConfig(source, operation string) resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.OnRetry = resilience.RetryLogger(source, operation)
	return cfg
}

// NewsAdapter searches for press coverage and backgrounders mentioning
// the subject.
type NewsAdapter struct {
	client jina.Client
}

// NewNewsAdapter creates a NewsAdapter.
func NewNewsAdapter(client jina.Client) *NewsAdapter {
	return &NewsAdapter{client: client}
}

func (a *NewsAdapter) Name() string {
	return model.SourceNews
}

func (a *NewsAdapter) Research(ctx context.Context, subject model.Subject) Result {
	if !subject.HasContext() {
		return Failure(a.Name(), "", model.KindInvalidInput, "no subject name or organization")
	}

	query := fmt.Sprintf(`"%s" %s news funding announcement`,
		strings.TrimSpace(subject.Name), strings.TrimSpace(subject.Organization))
	query = strings.Join(strings.Fields(query), " ")

	resp, err := resilience.DoVal(ctx, retryConfig(a.Name(), "search"),
		func(ctx context.Context) (*jina.SearchResponse, error) {
			return a.client.Search(ctx, query)
		})
	if err != nil {
		return Failure(a.Name(), query, resilience.KindOf(err), err.Error())
	}
	if len(resp.Data) == 0 {
		return Failure(a.Name(), query, model.KindFetchError, "no news results")
	}

	articles := make([]any, 0, len(resp.Data))
	var raw strings.Builder
	var citations []string
	for _, r := range resp.Data {
		articles = append(articles, map[string]any{
			"title":   r.Title,
			"url":     r.URL,
			"snippet": firstNonEmpty(r.Description, snippetOf(r.Content)),
		})
		citations = append(citations, r.URL)
		raw.WriteString(r.Title)
		raw.WriteString("\n")
		raw.WriteString(r.Content)
		raw.WriteString("\n\n")
	}

	return Result{
		Success: true,
		Source:  a.Name(),
		Query:   query,
		Data: map[string]any{
			"articles":  articles,
			"citations": citations,
		},
		Raw: raw.String(),
	}
}

func snippetOf(content string) string {
	const max = 300
	if len(content) > max {
		return content[:max]
	}
	return content
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
