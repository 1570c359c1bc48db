package adapter

import (
	"context"
	"regexp"
	"strings"

	"github.com/foundry-bot/partner-research/internal/model"
	"github.com/foundry-bot/partner-research/internal/resilience"
	"github.com/foundry-bot/partner-research/pkg/google"
)

// directoryDomain is the professional directory searched when the direct
// profile scrape is unavailable.
const directoryDomain = "linkedin.com"

// directoryTitlePattern matches "Name - Role - Org" directory result
// titles, with the trailing site suffix already stripped.
var directoryTitlePattern = regexp.MustCompile(`^(.{2,80}?)\s+-\s+(.{2,80}?)(?:\s+-\s+(.{2,80}?))?$`)

// DirectoryAdapter resolves a subject through a site-restricted web search
// of the professional directory. It is the fallback when the profile
// scrape fails and requires no pooled identity.
type DirectoryAdapter struct {
	client google.Client
}

// NewDirectoryAdapter creates a DirectoryAdapter.
func NewDirectoryAdapter(client google.Client) *DirectoryAdapter {
	return &DirectoryAdapter{client: client}
}

func (a *DirectoryAdapter) Name() string {
	return model.SourceDirectory
}

func (a *DirectoryAdapter) Research(ctx context.Context, subject model.Subject) Result {
	query := strings.TrimSpace(subject.Name + " " + subject.Organization)
	if query == "" {
		return Failure(a.Name(), "", model.KindInvalidInput, "no subject name or organization")
	}

	resp, err := resilience.DoVal(ctx, retryConfig(a.Name(), "search"),
		func(ctx context.Context) (*google.SearchResponse, error) {
			return a.client.Search(ctx, query, google.WithSite(directoryDomain))
		})
	if err != nil {
		return Failure(a.Name(), query, resilience.KindOf(err), err.Error())
	}
	if len(resp.Items) == 0 {
		return Failure(a.Name(), query, model.KindFetchError, "no directory results")
	}

	top := resp.Items[0]
	data := map[string]any{
		"result_title":   top.Title,
		"profile_url":    top.Link,
		"snippet":        top.Snippet,
		"total_results":  len(resp.Items),
	}
	if name, role, org, ok := parseDirectoryTitle(top.Title); ok {
		data["name"] = name
		data["role"] = role
		if org != "" {
			data["organization"] = org
		}
	}

	var raw strings.Builder
	for _, item := range resp.Items {
		raw.WriteString(item.Title)
		raw.WriteString("\n")
		raw.WriteString(item.Snippet)
		raw.WriteString("\n")
	}

	return Result{
		Success: true,
		Source:  a.Name(),
		Query:   query,
		Data:    data,
		Raw:     raw.String(),
	}
}

// parseDirectoryTitle splits a "Name - Role - Org | LinkedIn" result
// title into its parts.
func parseDirectoryTitle(title string) (name, role, org string, ok bool) {
	if i := strings.IndexAny(title, "|•"); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)

	m := directoryTitlePattern.FindStringSubmatch(title)
	if m == nil {
		return "", "", "", false
	}
	return strings.TrimSpace(m[1]), strings.TrimSpace(m[2]), strings.TrimSpace(m[3]), true
}
