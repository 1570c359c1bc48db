package model

// Subject identifies the person or organization being researched.
type Subject struct {
	Name         string `json:"name"`
	Organization string `json:"organization"`
	Role         string `json:"role,omitempty"`
	ProfileURL   string `json:"profile_url,omitempty"`
	RecordID     string `json:"record_id"`
}

// HasContext reports whether enough of the subject is resolved to run
// search-based sources (a name or an organization).
func (s Subject) HasContext() bool {
	return s.Name != "" || s.Organization != ""
}

// ResearchOptions controls which sources run and how far citation
// expansion goes.
type ResearchOptions struct {
	SkipProfile      bool `json:"skip_profile,omitempty"`
	SkipDirectory    bool `json:"skip_directory,omitempty"`
	SkipNews         bool `json:"skip_news,omitempty"`
	SkipSocial       bool `json:"skip_social,omitempty"`
	SkipEncyclopedia bool `json:"skip_encyclopedia,omitempty"`
	MaxCitations     int  `json:"max_citations,omitempty"`
}

// ResearchRequest is one pipeline invocation. It exists only for the
// duration of a run; stage outputs are persisted as ResearchRecords.
type ResearchRequest struct {
	Subject Subject         `json:"subject"`
	Options ResearchOptions `json:"options"`
}
