package adapter

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/foundry-bot/partner-research/internal/model"
	"github.com/foundry-bot/partner-research/internal/resilience"
	"github.com/foundry-bot/partner-research/pkg/jina"
)

// socialSites are the platforms probed for a subject's public presence.
var socialSites = []string{"x.com", "github.com", "crunchbase.com", "angel.co"}

// SocialAdapter discovers the subject's social and professional presence
// via site-restricted searches. Individual site failures are tolerated;
// the adapter fails only when every site errors out.
type SocialAdapter struct {
	client jina.Client
}

// NewSocialAdapter creates a SocialAdapter.
func NewSocialAdapter(client jina.Client) *SocialAdapter {
	return &SocialAdapter{client: client}
}

func (a *SocialAdapter) Name() string {
	return model.SourceSocial
}

func (a *SocialAdapter) Research(ctx context.Context, subject model.Subject) Result {
	if !subject.HasContext() {
		return Failure(a.Name(), "", model.KindInvalidInput, "no subject name or organization")
	}

	query := strings.TrimSpace(subject.Name + " " + subject.Organization)

	links := make(map[string]any)
	var raw strings.Builder
	var lastErr error
	for _, site := range socialSites {
		resp, err := resilience.DoVal(ctx, retryConfig(a.Name(), "search "+site),
			func(ctx context.Context) (*jina.SearchResponse, error) {
				return a.client.Search(ctx, query, jina.WithSiteFilter(site))
			})
		if err != nil {
			lastErr = err
			zap.L().Debug("social: site probe failed", zap.String("site", site), zap.Error(err))
			continue
		}
		if len(resp.Data) == 0 {
			continue
		}
		top := resp.Data[0]
		links[platformOf(site)] = top.URL
		raw.WriteString(top.Title)
		raw.WriteString("\n")
		raw.WriteString(firstNonEmpty(top.Description, snippetOf(top.Content)))
		raw.WriteString("\n\n")
	}

	if len(links) == 0 {
		if lastErr != nil {
			return Failure(a.Name(), query, resilience.KindOf(lastErr), lastErr.Error())
		}
		return Failure(a.Name(), query, model.KindFetchError, "no social presence found")
	}

	return Result{
		Success: true,
		Source:  a.Name(),
		Query:   query,
		Data:    map[string]any{"links": links},
		Raw:     raw.String(),
	}
}

func platformOf(site string) string {
	if i := strings.Index(site, "."); i > 0 {
		return site[:i]
	}
	return site
}
