package pipeline

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/foundry-bot/partner-research/internal/model"
)

// fieldRule binds one profile field to the payload keys that can fill it.
// Rules are applied per source in priority order; the first non-empty
// value wins and lower-priority sources never overwrite it.
type fieldRule struct {
	keys []string
	get  func(p *model.AggregatedProfile) string
	set  func(p *model.AggregatedProfile, v string)
}

var scalarRules = []fieldRule{
	{
		keys: []string{"name", "full_name", "title"},
		get:  func(p *model.AggregatedProfile) string { return p.Name },
		set:  func(p *model.AggregatedProfile, v string) { p.Name = v },
	},
	{
		keys: []string{"organization", "company", "company_name", "employer"},
		get:  func(p *model.AggregatedProfile) string { return p.Organization },
		set:  func(p *model.AggregatedProfile, v string) { p.Organization = v },
	},
	{
		keys: []string{"role", "headline", "position"},
		get:  func(p *model.AggregatedProfile) string { return p.Role },
		set:  func(p *model.AggregatedProfile, v string) { p.Role = v },
	},
	{
		keys: []string{"location", "headquarters", "city"},
		get:  func(p *model.AggregatedProfile) string { return p.Location },
		set:  func(p *model.AggregatedProfile, v string) { p.Location = v },
	},
	{
		keys: []string{"bio", "summary", "about", "description", "extract"},
		get:  func(p *model.AggregatedProfile) string { return p.Bio },
		set:  func(p *model.AggregatedProfile, v string) { p.Bio = v },
	},
	{
		keys: []string{"profile_url"},
		get:  func(p *model.AggregatedProfile) string { return p.ProfileURL },
		set:  func(p *model.AggregatedProfile, v string) { p.ProfileURL = v },
	},
}

// sourcePriority orders the named sources for field resolution. Caller
// data always wins; the direct scrape outranks searches; crawled citation
// pages rank last, after every named source.
var sourcePriority = []string{
	model.SourceSelfReported,
	model.SourceProfile,
	model.SourceDirectory,
	model.SourceEncyclopedia,
	model.SourceNews,
	model.SourceSocial,
}

// aggregate runs Stage 4: merge every source payload into one profile
// using the priority table, attach list fields and social links, and
// upsert the result.
func (o *Orchestrator) aggregate(ctx context.Context, subject model.Subject, result *model.RunResult) (map[string]any, error) {
	profile := &model.AggregatedProfile{
		SubjectID: subject.RecordID,
		UpdatedAt: o.now(),
	}

	ordered := o.orderedPayloads(subject, result.Records)

	used := make(map[string]bool)
	for _, sp := range ordered {
		contributed := false
		for _, rule := range scalarRules {
			if rule.get(profile) != "" {
				continue
			}
			if v := stringField(sp.payload, rule.keys...); v != "" {
				rule.set(profile, v)
				contributed = true
			}
		}
		if links := socialLinks(sp.payload); len(links) > 0 && profile.SocialLinks == nil {
			profile.SocialLinks = links
			contributed = true
		}
		if edu := stringList(sp.payload, "education"); len(edu) > 0 && profile.Education == nil {
			profile.Education = edu
			contributed = true
		}
		if career := stringList(sp.payload, "experiences", "career"); len(career) > 0 && profile.Career == nil {
			profile.Career = career
			contributed = true
		}
		if contributed {
			used[sp.source] = true
		}
	}

	// Quality is the mean score of the successful records behind the
	// profile; the synthesized self-reported payload carries no score.
	var sum float64
	var n int
	for _, rec := range result.Records {
		if rec.Status != model.RecordSuccess {
			continue
		}
		sum += rec.Confidence
		n++
	}
	if n > 0 {
		profile.DataQualityScore = sum / float64(n)
	}

	for source := range used {
		profile.SourcesUsed = append(profile.SourcesUsed, source)
	}
	sort.Strings(profile.SourcesUsed)

	if err := o.store.UpsertProfile(ctx, profile); err != nil {
		return nil, eris.Wrap(err, "aggregate: upsert profile")
	}
	result.Profile = profile

	return map[string]any{
		"sources_used":  len(profile.SourcesUsed),
		"quality_score": profile.DataQualityScore,
	}, nil
}

type sourcePayload struct {
	source  string
	payload map[string]any
}

// orderedPayloads lays out every successful payload in field-resolution
// order: the caller-supplied subject first, then named sources by
// priority, then citation pages in record order.
func (o *Orchestrator) orderedPayloads(subject model.Subject, records []model.ResearchRecord) []sourcePayload {
	bySource := make(map[string]map[string]any)
	var citations []sourcePayload
	for _, rec := range records {
		if rec.Status != model.RecordSuccess || len(rec.Payload) == 0 {
			continue
		}
		if model.IsCitationSource(rec.Source) {
			citations = append(citations, sourcePayload{source: rec.Source, payload: rec.Payload})
			continue
		}
		bySource[rec.Source] = rec.Payload
	}

	selfReported := map[string]any{}
	if subject.Name != "" {
		selfReported["name"] = subject.Name
	}
	if subject.Organization != "" {
		selfReported["organization"] = subject.Organization
	}
	if subject.Role != "" {
		selfReported["role"] = subject.Role
	}
	if subject.ProfileURL != "" {
		selfReported["profile_url"] = subject.ProfileURL
	}

	ordered := []sourcePayload{{source: model.SourceSelfReported, payload: selfReported}}
	for _, source := range sourcePriority[1:] {
		if payload, ok := bySource[source]; ok {
			ordered = append(ordered, sourcePayload{source: source, payload: payload})
		}
	}
	return append(ordered, citations...)
}

func socialLinks(payload map[string]any) map[string]string {
	links := make(map[string]string)
	switch raw := payload["links"].(type) {
	case map[string]string:
		for platform, link := range raw {
			links[platform] = link
		}
	case map[string]any:
		for platform, link := range raw {
			if s, ok := link.(string); ok && s != "" {
				links[platform] = s
			}
		}
	}
	if len(links) == 0 {
		return nil
	}
	return links
}

func stringList(payload map[string]any, keys ...string) []string {
	for _, key := range keys {
		switch raw := payload[key].(type) {
		case []string:
			if len(raw) > 0 {
				return raw
			}
		case []any:
			var out []string
			for _, item := range raw {
				if s, ok := item.(string); ok && s != "" {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return nil
}
