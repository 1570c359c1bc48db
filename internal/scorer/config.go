// Package scorer assigns quality scores to research records and
// cross-references extracted facts across independent sources.
package scorer

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Weights are the relative shares of the four quality components. They
// should sum to 1.
type Weights struct {
	Trust        float64 `yaml:"trust"`
	Recency      float64 `yaml:"recency"`
	Specificity  float64 `yaml:"specificity"`
	Completeness float64 `yaml:"completeness"`
}

// Config holds all scoring and cross-referencing constants.
type Config struct {
	Weights      Weights            `yaml:"weights"`
	SourceTrust  map[string]float64 `yaml:"source_trust"`
	DefaultTrust float64            `yaml:"default_trust"`

	// Cross-referencing.
	BaseConfidence       float64 `yaml:"base_confidence"`
	CorroborationBoost   float64 `yaml:"corroboration_boost"`
	ContradictionPenalty float64 `yaml:"contradiction_penalty"`
	VerifiedBonus        float64 `yaml:"verified_bonus"`
	MatchRatio           float64 `yaml:"match_ratio"`

	// A numeric claim in another source counts as a contradiction when its
	// magnitude differs from ours by a factor inside this window. The
	// window is a preserved heuristic, not a derived bound.
	ContradictionMinRatio float64 `yaml:"contradiction_min_ratio"`
	ContradictionMaxRatio float64 `yaml:"contradiction_max_ratio"`

	// Deduplication.
	DedupBoost float64 `yaml:"dedup_boost"`
}

// DefaultConfig returns the standard scoring configuration.
func DefaultConfig() Config {
	return Config{
		Weights: Weights{
			Trust:        0.30,
			Recency:      0.25,
			Specificity:  0.25,
			Completeness: 0.20,
		},
		SourceTrust: map[string]float64{
			"profile":      0.9,
			"directory":    0.75,
			"encyclopedia": 0.85,
			"news":         0.7,
			"social":       0.5,
		},
		DefaultTrust:          0.5,
		BaseConfidence:        0.3,
		CorroborationBoost:    0.15,
		ContradictionPenalty:  0.10,
		VerifiedBonus:         0.2,
		MatchRatio:            0.7,
		ContradictionMinRatio: 1.5,
		ContradictionMaxRatio: 10,
		DedupBoost:            0.05,
	}
}

// trustFileOverride is the shape of an optional YAML trust-table file.
type trustFileOverride struct {
	SourceTrust  map[string]float64 `yaml:"source_trust"`
	DefaultTrust float64            `yaml:"default_trust"`
}

// LoadTrustTable overlays source trust values from a YAML file onto the
// config.
func (c *Config) LoadTrustTable(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "scorer: read trust table %s", path)
	}

	var override trustFileOverride
	if err := yaml.Unmarshal(data, &override); err != nil {
		return eris.Wrap(err, "scorer: parse trust table")
	}

	for source, trust := range override.SourceTrust {
		c.SourceTrust[source] = trust
	}
	if override.DefaultTrust > 0 {
		c.DefaultTrust = override.DefaultTrust
	}
	return nil
}

// Trust returns the trust weight for a source name.
func (c *Config) Trust(source string) float64 {
	if t, ok := c.SourceTrust[source]; ok {
		return t
	}
	return c.DefaultTrust
}
