package model

import "time"

// AggregatedProfile is the merged, priority-resolved view of a subject
// across all sources. Each field holds the value from the highest-priority
// source that produced one.
type AggregatedProfile struct {
	SubjectID        string            `json:"subject_id"`
	Name             string            `json:"name"`
	Organization     string            `json:"organization"`
	Role             string            `json:"role,omitempty"`
	Location         string            `json:"location,omitempty"`
	Bio              string            `json:"bio,omitempty"`
	ProfileURL       string            `json:"profile_url,omitempty"`
	SocialLinks      map[string]string `json:"social_links,omitempty"`
	Education        []string          `json:"education,omitempty"`
	Career           []string          `json:"career,omitempty"`
	DataQualityScore float64           `json:"data_quality_score"`
	SourcesUsed      []string          `json:"sources_used"`
	UpdatedAt        time.Time         `json:"updated_at"`
}
