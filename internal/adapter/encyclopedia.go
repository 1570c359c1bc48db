package adapter

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/foundry-bot/partner-research/internal/model"
	"github.com/foundry-bot/partner-research/internal/resilience"
	"github.com/foundry-bot/partner-research/pkg/wikipedia"
)

// Alternative title suffixes tried when the exact title has no article.
// People and organizations collide with more famous namesakes often
// enough that the disambiguated titles are worth probing.
var (
	personSuffixes = []string{"(investor)", "(venture capitalist)", "(entrepreneur)", "(businessperson)"}
	orgSuffixes    = []string{"(company)", "(venture capital)", "(firm)"}
)

// EncyclopediaAdapter looks the subject up on Wikipedia, preferring the
// person article and falling back to the organization.
type EncyclopediaAdapter struct {
	client wikipedia.Client
}

// NewEncyclopediaAdapter creates an EncyclopediaAdapter.
func NewEncyclopediaAdapter(client wikipedia.Client) *EncyclopediaAdapter {
	return &EncyclopediaAdapter{client: client}
}

func (a *EncyclopediaAdapter) Name() string {
	return model.SourceEncyclopedia
}

func (a *EncyclopediaAdapter) Research(ctx context.Context, subject model.Subject) Result {
	if !subject.HasContext() {
		return Failure(a.Name(), "", model.KindInvalidInput, "no subject name or organization")
	}

	type lookup struct {
		title    string
		suffixes []string
	}
	var lookups []lookup
	if subject.Name != "" {
		lookups = append(lookups, lookup{subject.Name, personSuffixes})
	}
	if subject.Organization != "" {
		lookups = append(lookups, lookup{subject.Organization, orgSuffixes})
	}

	for _, l := range lookups {
		page, err := a.findPage(ctx, l.title, l.suffixes)
		if err != nil {
			if errors.Is(err, wikipedia.ErrNotFound) {
				continue
			}
			return Failure(a.Name(), l.title, resilience.KindOf(err), err.Error())
		}
		return Result{
			Success: true,
			Source:  a.Name(),
			Query:   l.title,
			Data: map[string]any{
				"title":       page.Title,
				"description": page.Description,
				"extract":     page.Extract,
				"url":         page.URL,
			},
			Raw: page.Extract,
		}
	}

	return Failure(a.Name(), subject.Name, model.KindFetchError,
		fmt.Sprintf("no encyclopedia article for %q or %q", subject.Name, subject.Organization))
}

// findPage tries the exact title first, then each disambiguation suffix.
func (a *EncyclopediaAdapter) findPage(ctx context.Context, title string, suffixes []string) (*wikipedia.Page, error) {
	candidates := make([]string, 0, len(suffixes)+1)
	candidates = append(candidates, title)
	for _, suffix := range suffixes {
		candidates = append(candidates, title+" "+suffix)
	}

	for _, candidate := range candidates {
		page, err := resilience.DoVal(ctx, retryConfig(a.Name(), "summary"),
			func(ctx context.Context) (*wikipedia.Page, error) {
				return a.client.Summary(ctx, candidate)
			})
		if err == nil {
			return page, nil
		}
		if !errors.Is(err, wikipedia.ErrNotFound) {
			return nil, err
		}
		zap.L().Debug("encyclopedia: no article", zap.String("title", candidate))
	}
	return nil, wikipedia.ErrNotFound
}
