package scorer

import (
	"regexp"
	"time"

	"github.com/foundry-bot/partner-research/internal/model"
)

var (
	yearPattern     = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	currencyPattern = regexp.MustCompile(`[$€£]\s?\d[\d,.]*(?:\s?(?:million|billion|[MBK]))?`)
	properPattern   = regexp.MustCompile(`\b[A-Z][a-z]{2,}\b`)
	urlPattern      = regexp.MustCompile(`https?://[^\s)>\]]+`)
	quotePattern    = regexp.MustCompile(`"[^"]{10,}"`)
)

// Scorer computes quality scores for research records.
type Scorer struct {
	cfg Config
	now func() time.Time
}

// New creates a Scorer.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg, now: time.Now}
}

// WithNow fixes the scorer's clock for testing.
func (s *Scorer) WithNow(now func() time.Time) *Scorer {
	s.now = now
	return s
}

// Score rates a record in [0,1] as the weighted sum of four independently
// capped components: source trust, recency, content specificity, and
// payload completeness.
func (s *Scorer) Score(record *model.ResearchRecord) float64 {
	w := s.cfg.Weights
	score := w.Trust*s.cfg.Trust(record.Source) +
		w.Recency*s.recency(record.CollectedAt) +
		w.Specificity*specificity(serializeRecord(record)) +
		w.Completeness*completeness(record.Payload)

	return clamp01(score)
}

// recency is a step function of content age: fresh content scores high and
// the score asymptotes for anything older than a year.
func (s *Scorer) recency(collectedAt time.Time) float64 {
	age := s.now().Sub(collectedAt)
	switch {
	case age <= 7*24*time.Hour:
		return 1.0
	case age <= 30*24*time.Hour:
		return 0.8
	case age <= 90*24*time.Hour:
		return 0.6
	case age <= 365*24*time.Hour:
		return 0.4
	default:
		return 0.2
	}
}

// specificity rewards concrete markers: dated years, currency amounts,
// multiple proper nouns, URLs, and direct quotations.
func specificity(content string) float64 {
	var score float64
	if yearPattern.MatchString(content) {
		score += 0.2
	}
	if currencyPattern.MatchString(content) {
		score += 0.2
	}
	if len(properPattern.FindAllString(content, 4)) >= 3 {
		score += 0.2
	}
	if urlPattern.MatchString(content) {
		score += 0.2
	}
	if quotePattern.MatchString(content) {
		score += 0.2
	}
	return clamp01(score)
}

const completenessMaxDepth = 3

// completeness is the ratio of non-empty leaf fields in the payload,
// recursing into nested maps and slices to a bounded depth.
func completeness(payload map[string]any) float64 {
	if len(payload) == 0 {
		return 0
	}
	total, filled := countLeaves(payload, 0)
	if total == 0 {
		return 0
	}
	return float64(filled) / float64(total)
}

func countLeaves(v any, depth int) (total, filled int) {
	if depth > completenessMaxDepth {
		return 0, 0
	}
	switch val := v.(type) {
	case map[string]any:
		for _, child := range val {
			t, f := countLeaves(child, depth+1)
			total += t
			filled += f
		}
	case []any:
		for _, child := range val {
			t, f := countLeaves(child, depth+1)
			total += t
			filled += f
		}
	case string:
		total = 1
		if val != "" {
			filled = 1
		}
	case nil:
		total = 1
	default:
		// Numbers and booleans count as filled.
		total = 1
		filled = 1
	}
	return total, filled
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
