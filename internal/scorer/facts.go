package scorer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/foundry-bot/partner-research/internal/model"
)

// fieldAliases maps payload keys to fact types. Sources disagree on field
// naming; all known spellings are listed.
var fieldAliases = map[model.FactType][]string{
	model.FactRole:         {"role", "title", "headline", "position"},
	model.FactOrganization: {"organization", "company", "company_name", "employer", "org"},
	model.FactLocation:     {"location", "headquarters", "city"},
	model.FactBio:          {"bio", "summary", "description", "about", "extract"},
}

// ExtractFacts derives atomic claims from a successful record using
// field-name lookup and regex heuristics. Confidence starts at the
// record's own quality score.
func (s *Scorer) ExtractFacts(record *model.ResearchRecord) []model.Fact {
	if record.Status != model.RecordSuccess {
		return nil
	}

	base := record.Confidence
	if base == 0 {
		base = s.Score(record)
	}

	var facts []model.Fact
	add := func(t model.FactType, value, context string) {
		value = strings.TrimSpace(value)
		if value == "" {
			return
		}
		facts = append(facts, model.Fact{
			Type:       t,
			Value:      value,
			Confidence: base,
			Context:    context,
			Source:     record.Source,
		})
	}

	for factType, aliases := range fieldAliases {
		for _, key := range aliases {
			if v, ok := record.Payload[key].(string); ok && v != "" {
				add(factType, v, "payload field "+key)
				break
			}
		}
	}

	// Education may be a list or a single string.
	switch edu := record.Payload["education"].(type) {
	case string:
		add(model.FactEducation, edu, "payload field education")
	case []any:
		for _, e := range edu {
			if sv, ok := e.(string); ok {
				add(model.FactEducation, sv, "payload field education")
			}
		}
	}

	// Funding amounts come from free text, not structured fields.
	content := serializeRecord(record)
	for _, amount := range currencyPattern.FindAllString(content, 3) {
		add(model.FactFunding, amount, "amount mentioned in content")
	}

	return facts
}

// serializeRecord flattens a record's payload and raw text into one
// searchable string.
func serializeRecord(record *model.ResearchRecord) string {
	var b strings.Builder
	if len(record.Payload) > 0 {
		if data, err := json.Marshal(record.Payload); err == nil {
			b.Write(data)
			b.WriteByte(' ')
		} else {
			fmt.Fprintf(&b, "%v ", record.Payload)
		}
	}
	b.WriteString(record.Raw)
	return b.String()
}
