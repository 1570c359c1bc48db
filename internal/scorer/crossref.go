package scorer

import (
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/foundry-bot/partner-research/internal/model"
)

// typeVocabulary adds type-specific key terms so a fact's subject matter,
// not just its literal words, is matched in other sources.
var typeVocabulary = map[model.FactType][]string{
	model.FactFunding:   {"funding", "raised", "round", "investment"},
	model.FactEducation: {"university", "college", "degree", "graduated"},
	model.FactRole:      {"founder", "partner", "director", "chief"},
}

var properNounPattern = regexp.MustCompile(`\b[A-Z][A-Za-z]{3,}\b`)

// CrossReference scans every fact against all other-source records and
// resolves a verification status and adjusted confidence for each. A
// record from the fact's own source never corroborates it.
func (s *Scorer) CrossReference(facts []model.Fact, records []model.ResearchRecord) []model.VerifiedFact {
	// Pre-normalize record contents once.
	contents := make([]string, len(records))
	for i := range records {
		contents[i] = normalizeValue(serializeRecord(&records[i]))
	}

	verified := make([]model.VerifiedFact, 0, len(facts))
	for _, fact := range facts {
		vf := s.crossReferenceOne(fact, records, contents)
		verified = append(verified, vf)
	}
	return verified
}

func (s *Scorer) crossReferenceOne(fact model.Fact, records []model.ResearchRecord, contents []string) model.VerifiedFact {
	terms := keyTerms(fact)
	confidence := fact.Confidence

	vf := model.VerifiedFact{Fact: fact}
	factAmount, hasAmount := parseAmount(fact.Value)

	for i := range records {
		rec := &records[i]
		if rec.Source == fact.Source || rec.Status != model.RecordSuccess {
			continue
		}

		// Numeric facts: a different magnitude in the contradiction window
		// counts against the claim instead of for it.
		if hasAmount && fact.Type == model.FactFunding {
			if other, found := contradictingAmount(factAmount, serializeRecord(rec), s.cfg); found {
				vf.Contradictions = append(vf.Contradictions, model.Contradiction{
					Source: rec.Source,
					Value:  other,
					Detail: "conflicting amount",
				})
				confidence -= s.cfg.ContradictionPenalty
				continue
			}
		}

		if len(terms) == 0 {
			continue
		}
		matched := 0
		for _, term := range terms {
			if strings.Contains(contents[i], term) {
				matched++
			}
		}
		if float64(matched)/float64(len(terms)) >= s.cfg.MatchRatio {
			vf.CorroboratingSources = append(vf.CorroboratingSources, rec.Source)
			confidence += s.cfg.CorroborationBoost
		}
	}

	// Status resolution, in priority order.
	switch {
	case len(vf.CorroboratingSources) >= 2:
		vf.Status = model.FactVerified
		confidence += s.cfg.VerifiedBonus
		if len(vf.Contradictions) > 0 {
			vf.Status = model.FactDisputed
		}
	case len(vf.Contradictions) > 0:
		if len(vf.CorroboratingSources) > 0 {
			vf.Status = model.FactDisputed
		} else {
			vf.Status = model.FactContradicted
		}
	case len(vf.CorroboratingSources) == 1:
		vf.Status = model.FactPartiallyVerified
	default:
		vf.Status = model.FactUnverified
		confidence = s.cfg.BaseConfidence
	}

	vf.Confidence = clamp01(confidence)

	if vf.Status == model.FactDisputed || vf.Status == model.FactContradicted {
		zap.L().Debug("scorer: conflicting fact",
			zap.String("type", string(fact.Type)),
			zap.String("value", fact.Value),
			zap.String("status", string(vf.Status)),
			zap.Int("contradictions", len(vf.Contradictions)),
		)
	}
	return vf
}

// keyTerms extracts the searchable terms of a fact: amounts, years, proper
// nouns of at least 4 characters, and type vocabulary, all normalized.
func keyTerms(fact model.Fact) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(t string) {
		t = normalizeValue(t)
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		terms = append(terms, t)
	}

	for _, m := range currencyPattern.FindAllString(fact.Value, -1) {
		add(m)
	}
	for _, m := range yearPattern.FindAllString(fact.Value, -1) {
		add(m)
	}
	for _, m := range properNounPattern.FindAllString(fact.Value, -1) {
		add(m)
	}
	for _, term := range typeVocabulary[fact.Type] {
		if strings.Contains(strings.ToLower(fact.Value), term) {
			add(term)
		}
	}
	return terms
}

var amountPattern = regexp.MustCompile(`[$€£]\s?(\d[\d,.]*)\s?(million|billion|[MBK])?`)

// parseAmount extracts the first currency amount from text as an absolute
// value.
func parseAmount(text string) (float64, bool) {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	num, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "million", "m":
		num *= 1e6
	case "billion", "b":
		num *= 1e9
	case "k":
		num *= 1e3
	}
	return num, true
}

// contradictingAmount reports whether other-source content claims an
// amount whose magnitude differs from ours by a factor inside the
// configured window. Amounts outside the window are assumed to describe
// something else entirely.
func contradictingAmount(ours float64, content string, cfg Config) (string, bool) {
	if ours == 0 {
		return "", false
	}
	for _, m := range amountPattern.FindAllString(content, 10) {
		other, ok := parseAmount(m)
		if !ok || other == 0 {
			continue
		}
		ratio := other / ours
		if ratio < 1 {
			ratio = 1 / ratio
		}
		if ratio >= cfg.ContradictionMinRatio && ratio <= cfg.ContradictionMaxRatio {
			return m, true
		}
	}
	return "", false
}
