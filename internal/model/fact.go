package model

// FactType classifies an extracted claim.
type FactType string

const (
	FactRole         FactType = "role"
	FactOrganization FactType = "organization"
	FactEducation    FactType = "education"
	FactLocation     FactType = "location"
	FactFunding      FactType = "funding"
	FactBio          FactType = "bio"
)

// Fact is an atomic claim extracted from one source's record. Derived,
// not authoritative.
type Fact struct {
	Type       FactType `json:"type"`
	Value      string   `json:"value"`
	Confidence float64  `json:"confidence"`
	Context    string   `json:"context,omitempty"`
	Source     string   `json:"source"`
}

// VerificationStatus is the outcome of cross-referencing a fact against
// other sources.
type VerificationStatus string

const (
	FactUnverified        VerificationStatus = "unverified"
	FactPartiallyVerified VerificationStatus = "partially_verified"
	FactVerified          VerificationStatus = "verified"
	FactDisputed          VerificationStatus = "disputed"
	FactContradicted      VerificationStatus = "contradicted"
)

// Contradiction records a conflicting claim found in another source.
type Contradiction struct {
	Source string `json:"source"`
	Value  string `json:"value"`
	Detail string `json:"detail,omitempty"`
}

// VerifiedFact is a fact after cross-referencing: corroborating sources,
// contradictions, and the resolved confidence/status.
type VerifiedFact struct {
	Fact                 Fact               `json:"fact"`
	CorroboratingSources []string           `json:"corroborating_sources,omitempty"`
	Contradictions       []Contradiction    `json:"contradictions,omitempty"`
	Confidence           float64            `json:"confidence"`
	Status               VerificationStatus `json:"status"`
}
