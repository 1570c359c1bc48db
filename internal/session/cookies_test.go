package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize_CaptureShapes(t *testing.T) {
	t.Parallel()

	raw := []map[string]any{
		{"name": "li_at", "value": "tok", "domain": ".linkedin.com", "expiry": float64(1767225600)},
		{"name": "JSESSIONID", "value": "abc", "expiry": 1767225600},
		{"name": "bcookie", "value": "b", "expirationDate": float64(1767225600.5)},
		{"name": "", "value": "dropped"},
		{"name": "dropped-too", "value": ""},
	}

	cookies := Normalize(raw)
	require.Len(t, cookies, 3)

	assert.Equal(t, "li_at", cookies[0].Name)
	assert.Equal(t, float64(1767225600), cookies[0].Expiry)

	// Missing domain and path fall back to defaults.
	assert.Equal(t, ".linkedin.com", cookies[1].Domain)
	assert.Equal(t, "/", cookies[1].Path)
	assert.Equal(t, float64(1767225600), cookies[1].Expiry)

	// Extension-style expirationDate is honored when expiry is absent.
	assert.Equal(t, 1767225600.5, cookies[2].Expiry)
}

func TestFilterEssential(t *testing.T) {
	t.Parallel()

	cookies := []Cookie{
		{Name: "li_at", Value: "tok"},
		{Name: "JSESSIONID", Value: "abc"},
		{Name: "ad_tracker", Value: "noise"},
		{Name: "bscookie", Value: "b"},
	}

	kept := FilterEssential(cookies)
	require.Len(t, kept, 3)
	for _, c := range kept {
		assert.NotEqual(t, "ad_tracker", c.Name)
	}
}

func TestValidate_RequiresPrimaryAuthCookie(t *testing.T) {
	t.Parallel()

	assert.False(t, Validate(nil))
	assert.False(t, Validate([]Cookie{{Name: "JSESSIONID", Value: "abc"}}))
	assert.False(t, Validate([]Cookie{{Name: "li_at", Value: ""}}))
	assert.True(t, Validate([]Cookie{{Name: "li_at", Value: "tok"}}))
}

func TestMarshalCookies_RoundTrip(t *testing.T) {
	t.Parallel()

	in := []Cookie{
		{Name: "li_at", Value: "tok", Domain: ".linkedin.com", Path: "/", Expiry: 1767225600, Secure: true},
	}

	blob, err := MarshalCookies(in)
	require.NoError(t, err)

	out, err := UnmarshalCookies(blob)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	_, err = UnmarshalCookies("{not json")
	require.Error(t, err)
}
