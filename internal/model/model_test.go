package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCitationSource(t *testing.T) {
	assert.Equal(t, "citation:press.example.com", CitationSource("press.example.com"))
	assert.True(t, IsCitationSource("citation:press.example.com"))
	assert.False(t, IsCitationSource("citation:"))
	assert.False(t, IsCitationSource(SourceNews))
	assert.False(t, IsCitationSource(""))
}

func TestSubjectHasContext(t *testing.T) {
	assert.True(t, Subject{Name: "Jordan Blake"}.HasContext())
	assert.True(t, Subject{Organization: "Acme Ventures"}.HasContext())
	assert.False(t, Subject{ProfileURL: "https://network.example/in/jblake"}.HasContext())
	assert.False(t, Subject{}.HasContext())
}

func TestRecordFresh(t *testing.T) {
	now := time.Now()
	fresh := ResearchRecord{ExpiresAt: now.Add(time.Hour)}
	stale := ResearchRecord{ExpiresAt: now.Add(-time.Hour)}
	assert.True(t, fresh.Fresh(now))
	assert.False(t, stale.Fresh(now))
}

func TestIdentityInCooldown(t *testing.T) {
	now := time.Now()
	later := now.Add(time.Hour)
	earlier := now.Add(-time.Hour)

	assert.True(t, (&Identity{CooldownUntil: &later}).InCooldown(now))
	assert.False(t, (&Identity{CooldownUntil: &earlier}).InCooldown(now))
	assert.False(t, (&Identity{}).InCooldown(now))
}

func TestErrorKindIdentitySpecific(t *testing.T) {
	assert.True(t, KindAuthFailed.IdentitySpecific())
	assert.True(t, KindSecurityCheckpoint.IdentitySpecific())
	assert.True(t, KindRateLimited.IdentitySpecific())
	assert.False(t, KindFetchError.IdentitySpecific())
	assert.False(t, KindNoneAvailable.IdentitySpecific())
	assert.False(t, KindMissingContext.IdentitySpecific())
}

func TestRunResultAddError(t *testing.T) {
	var r RunResult
	r.AddError("1_collect", SourceNews, KindFetchError, "no news results")
	r.AddError("3_verify", "", KindProcessError, "scoring failed")

	assert.Len(t, r.Errors, 2)
	assert.Equal(t, SourceNews, r.Errors[0].Source)
	assert.Equal(t, KindProcessError, r.Errors[1].Kind)
}
