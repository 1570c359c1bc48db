package scorer

import (
	"github.com/foundry-bot/partner-research/internal/model"
)

// DedupedFact is a fact merged across sources.
type DedupedFact struct {
	model.Fact
	Sources []string `json:"sources"`
}

// Deduplicate merges facts whose (type, normalized-value-prefix) keys
// collide, accumulating source labels and nudging confidence upward for
// each additional independent source.
func (s *Scorer) Deduplicate(facts []model.Fact) []DedupedFact {
	index := make(map[string]int)
	var out []DedupedFact

	for _, fact := range facts {
		key := dedupeKey(string(fact.Type), fact.Value)
		if i, ok := index[key]; ok {
			merged := &out[i]
			if !containsStr(merged.Sources, fact.Source) {
				merged.Sources = append(merged.Sources, fact.Source)
				merged.Confidence = clamp01(merged.Confidence + s.cfg.DedupBoost)
			}
			if fact.Confidence > merged.Fact.Confidence {
				// Keep the highest-confidence wording.
				sources := merged.Sources
				conf := merged.Confidence
				merged.Fact = fact
				merged.Sources = sources
				merged.Confidence = conf
			}
			continue
		}
		index[key] = len(out)
		out = append(out, DedupedFact{Fact: fact, Sources: []string{fact.Source}})
	}
	return out
}

func containsStr(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
