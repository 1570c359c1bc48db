package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundry-bot/partner-research/internal/model"
)

func factValues(facts []model.Fact, factType model.FactType) []string {
	var out []string
	for _, f := range facts {
		if f.Type == factType {
			out = append(out, f.Value)
		}
	}
	return out
}

func TestExtractFacts_PayloadFields(t *testing.T) {
	t.Parallel()
	s := fixedScorer()

	rec := &model.ResearchRecord{
		Source: "profile",
		Payload: map[string]any{
			"headline":  "Managing Partner",
			"company":   "Acme Ventures",
			"location":  "Austin, TX",
			"summary":   "Early-stage investor.",
			"education": []any{"Stanford University", "MIT Sloan"},
		},
		Status:      model.RecordSuccess,
		Confidence:  0.8,
		CollectedAt: scoreNow,
	}

	facts := s.ExtractFacts(rec)

	assert.Equal(t, []string{"Managing Partner"}, factValues(facts, model.FactRole))
	assert.Equal(t, []string{"Acme Ventures"}, factValues(facts, model.FactOrganization))
	assert.Equal(t, []string{"Austin, TX"}, factValues(facts, model.FactLocation))
	assert.Equal(t, []string{"Early-stage investor."}, factValues(facts, model.FactBio))
	assert.ElementsMatch(t, []string{"Stanford University", "MIT Sloan"}, factValues(facts, model.FactEducation))

	for _, f := range facts {
		assert.Equal(t, "profile", f.Source)
		assert.Equal(t, 0.8, f.Confidence, "facts inherit the record score")
	}
}

func TestExtractFacts_FundingFromContent(t *testing.T) {
	t.Parallel()
	s := fixedScorer()

	rec := &model.ResearchRecord{
		Source:      "news",
		Raw:         "Acme Ventures closed a $25 million fund after an earlier €3M vehicle.",
		Status:      model.RecordSuccess,
		Confidence:  0.6,
		CollectedAt: scoreNow,
	}

	funding := factValues(s.ExtractFacts(rec), model.FactFunding)
	require.Len(t, funding, 2)
	assert.Contains(t, funding[0], "$25")
}

func TestExtractFacts_FailedRecordYieldsNothing(t *testing.T) {
	t.Parallel()
	s := fixedScorer()

	rec := &model.ResearchRecord{
		Source:       "news",
		Status:       model.RecordFailed,
		ErrorMessage: "fetch returned 502",
	}
	assert.Nil(t, s.ExtractFacts(rec))
}

func TestExtractFacts_ScoresWhenRecordUnscored(t *testing.T) {
	t.Parallel()
	s := fixedScorer()

	rec := &model.ResearchRecord{
		Source:      "encyclopedia",
		Payload:     map[string]any{"description": "An investment firm"},
		Status:      model.RecordSuccess,
		CollectedAt: scoreNow.Add(-time.Hour),
	}

	facts := s.ExtractFacts(rec)
	require.NotEmpty(t, facts)
	assert.Greater(t, facts[0].Confidence, 0.0)
}
