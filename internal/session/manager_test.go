package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundry-bot/partner-research/internal/model"
	"github.com/foundry-bot/partner-research/internal/store"
)

func newTestManager(t *testing.T) (*Manager, store.Store) {
	t.Helper()

	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	cipher, err := NewCipher(testKey)
	require.NoError(t, err)

	return NewManager(st, cipher), st
}

func seedIdentity(t *testing.T, st store.Store, id string) {
	t.Helper()
	require.NoError(t, st.CreateIdentity(context.Background(), &model.Identity{
		ID:     id,
		Label:  "test",
		Status: model.IdentityActive,
	}))
}

func TestManager_SaveLoad_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager(t)
	seedIdentity(t, st, "id-1")

	raw := []map[string]any{
		{"name": "li_at", "value": "tok", "expiry": float64(4102444800)},
		{"name": "JSESSIONID", "value": "abc"},
		{"name": "ad_tracker", "value": "noise"},
	}
	require.NoError(t, m.Save(ctx, "id-1", raw))

	cookies := m.Load(ctx, "id-1")
	require.Len(t, cookies, 2)
	assert.True(t, Validate(cookies))
}

func TestManager_Save_RejectsMissingAuthCookie(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager(t)
	seedIdentity(t, st, "id-1")

	err := m.Save(ctx, "id-1", []map[string]any{
		{"name": "JSESSIONID", "value": "abc"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "primary authentication cookie")
}

func TestManager_Load_NoSession(t *testing.T) {
	m, _ := newTestManager(t)
	assert.Nil(t, m.Load(context.Background(), "missing"))
}

func TestManager_Load_ExpiredSession(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager(t)
	seedIdentity(t, st, "id-1")

	blob, err := MarshalCookies([]Cookie{{Name: "li_at", Value: "tok"}})
	require.NoError(t, err)
	envelope, err := m.Cipher().Encrypt(blob)
	require.NoError(t, err)

	require.NoError(t, st.PutSession(ctx, &model.Session{
		IdentityID:       "id-1",
		EncryptedCookies: envelope,
		ExpiresAt:        time.Now().Add(-time.Hour),
	}))

	assert.Nil(t, m.Load(ctx, "id-1"))
}

func TestManager_Load_UndecryptableForcesReauth(t *testing.T) {
	ctx := context.Background()
	m, st := newTestManager(t)
	seedIdentity(t, st, "id-1")

	require.NoError(t, st.PutSession(ctx, &model.Session{
		IdentityID:       "id-1",
		EncryptedCookies: "aa:bb:cc",
		ExpiresAt:        time.Now().Add(time.Hour),
	}))

	assert.Nil(t, m.Load(ctx, "id-1"))
}

func TestManager_RefreshWindow(t *testing.T) {
	m, _ := newTestManager(t)
	m.WithWindows(30*24*time.Hour, 7*24*time.Hour)

	assert.True(t, m.IsValid(time.Now().Add(time.Hour)))
	assert.False(t, m.IsValid(time.Now().Add(-time.Minute)))

	// Valid but inside the look-ahead window: due for proactive refresh.
	soon := time.Now().Add(3 * 24 * time.Hour)
	assert.True(t, m.IsValid(soon))
	assert.True(t, m.ShouldRefresh(soon))

	later := time.Now().Add(20 * 24 * time.Hour)
	assert.False(t, m.ShouldRefresh(later))
}
