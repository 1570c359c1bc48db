package model

import "time"

// RecordStatus marks whether a source call succeeded.
type RecordStatus string

const (
	RecordSuccess RecordStatus = "success"
	RecordFailed  RecordStatus = "failed"
)

// Source names for research records. Citation records use a
// "citation:<host>" prefix and are matched with IsCitationSource.
const (
	SourceProfile      = "profile"
	SourceDirectory    = "directory"
	SourceNews         = "news"
	SourceSocial       = "social"
	SourceEncyclopedia = "encyclopedia"
	SourceSelfReported = "self_reported"

	citationPrefix = "citation:"
)

// CitationSource builds the source label for a crawled citation page.
func CitationSource(host string) string {
	return citationPrefix + host
}

// IsCitationSource reports whether a source label names a crawled citation.
func IsCitationSource(source string) bool {
	return len(source) > len(citationPrefix) && source[:len(citationPrefix)] == citationPrefix
}

// ResearchRecord is one persisted source result for one subject. Records
// are upserted by (subject, source) so re-running a pipeline overwrites
// rather than duplicates.
type ResearchRecord struct {
	ID           string         `json:"id"`
	SubjectID    string         `json:"subject_id"`
	Source       string         `json:"source"`
	Query        string         `json:"query"`
	Payload      map[string]any `json:"payload,omitempty"`
	Raw          string         `json:"raw,omitempty"`
	Status       RecordStatus   `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Confidence   float64        `json:"confidence"`
	CollectedAt  time.Time      `json:"collected_at"`
	ExpiresAt    time.Time      `json:"expires_at"`
}

// Fresh reports whether the record is still inside its staleness window.
func (r *ResearchRecord) Fresh(now time.Time) bool {
	return r.ExpiresAt.After(now)
}
