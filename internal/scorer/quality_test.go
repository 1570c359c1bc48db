package scorer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundry-bot/partner-research/internal/model"
)

var scoreNow = time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

func fixedScorer() *Scorer {
	return New(DefaultConfig()).WithNow(func() time.Time { return scoreNow })
}

func TestTrust_LookupAndDefault(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()

	assert.Equal(t, 0.9, cfg.Trust("profile"))
	assert.Equal(t, 0.7, cfg.Trust("news"))
	assert.Equal(t, 0.5, cfg.Trust("citation:example.com"), "unknown sources get the default")
}

func TestRecency_Steps(t *testing.T) {
	t.Parallel()
	s := fixedScorer()

	cases := []struct {
		age  time.Duration
		want float64
	}{
		{2 * 24 * time.Hour, 1.0},
		{20 * 24 * time.Hour, 0.8},
		{60 * 24 * time.Hour, 0.6},
		{200 * 24 * time.Hour, 0.4},
		{500 * 24 * time.Hour, 0.2},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, s.recency(scoreNow.Add(-tc.age)), "age %v", tc.age)
	}
}

func TestSpecificity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, specificity("almost nothing here"))

	// One marker at a time.
	assert.Equal(t, 0.2, specificity("founded in 2019"))
	assert.Equal(t, 0.2, specificity("raised $5 million"))
	assert.Equal(t, 0.2, specificity("Acme Partners hired Jordan Blake"))
	assert.Equal(t, 0.2, specificity("see https://example.com/report"))
	assert.Equal(t, 0.2, specificity(`the firm said "we are expanding rapidly"`))

	// All five markers cap at 1.
	rich := `Acme Partners and Jordan Blake raised $5 million in 2019, per https://example.com: "a transformative round overall"`
	assert.Equal(t, 1.0, specificity(rich))
}

func TestCompleteness(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.0, completeness(nil))
	assert.Equal(t, 0.0, completeness(map[string]any{}))

	payload := map[string]any{
		"name": "Jordan Blake",
		"role": "",
		"org":  "Acme",
		"misc": nil,
	}
	assert.InDelta(t, 0.5, completeness(payload), 1e-9)

	nested := map[string]any{
		"name": "Jordan",
		"links": map[string]any{
			"github": "https://github.com/jblake",
			"x":      "",
		},
	}
	assert.InDelta(t, 2.0/3.0, completeness(nested), 1e-9)
}

func TestScore_WeightedSum(t *testing.T) {
	t.Parallel()
	s := fixedScorer()

	rec := &model.ResearchRecord{
		Source:      "profile",
		Payload:     map[string]any{"name": "Jordan Blake", "role": "Partner"},
		Raw:         `Jordan Blake joined Acme Partners in 2019 after raising $5 million, per https://example.com: "a very strong start indeed"`,
		Status:      model.RecordSuccess,
		CollectedAt: scoreNow.Add(-24 * time.Hour),
	}

	// trust .9*.30 + recency 1*.25 + specificity 1*.25 + completeness 1*.20
	got := s.Score(rec)
	require.InDelta(t, 0.97, got, 1e-9)
}

func TestScore_Clamped(t *testing.T) {
	t.Parallel()
	s := fixedScorer()

	rec := &model.ResearchRecord{
		Source:      "citation:unknown.example",
		Status:      model.RecordSuccess,
		CollectedAt: scoreNow.Add(-2 * 365 * 24 * time.Hour),
	}
	got := s.Score(rec)
	assert.GreaterOrEqual(t, got, 0.0)
	assert.LessOrEqual(t, got, 1.0)
}
