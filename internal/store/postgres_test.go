package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foundry-bot/partner-research/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_Migrate(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS identities").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateIdentity_AssignsID(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO identities").
		WithArgs(pgxmock.AnyArg(), "scraper-1", "enc-email", "enc-pass", "", "",
			"active", 0, 0, 0, (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), "",
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	identity := &model.Identity{
		Label:             "scraper-1",
		EncryptedEmail:    "enc-email",
		EncryptedPassword: "enc-pass",
	}
	require.NoError(t, st.CreateIdentity(context.Background(), identity))
	assert.NotEmpty(t, identity.ID)
	assert.Equal(t, model.IdentityActive, identity.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetIdentity_NotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM identities WHERE id").
		WithArgs("ghost").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	_, err := st.GetIdentity(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateIdentity_NotFound(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("UPDATE identities SET").
		WithArgs("s", "active", 0, 0, 0, (*time.Time)(nil), (*time.Time)(nil), (*time.Time)(nil), "",
			pgxmock.AnyArg(), "ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := st.UpdateIdentity(context.Background(), &model.Identity{
		ID: "ghost", Label: "s", Status: model.IdentityActive,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetSession_Missing(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery("SELECT identity_id, enc_cookies, expires_at, updated_at FROM sessions").
		WithArgs("id-1").
		WillReturnRows(pgxmock.NewRows([]string{"identity_id"}))

	sess, err := st.GetSession(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Nil(t, sess)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_PutSession_Upserts(t *testing.T) {
	st, mock := newMockStore(t)

	expires := time.Now().Add(time.Hour).UTC()
	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("id-1", "aa:bb:cc", expires, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.PutSession(context.Background(), &model.Session{
		IdentityID:       "id-1",
		EncryptedCookies: "aa:bb:cc",
		ExpiresAt:        expires,
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpsertRecord(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	payload, err := json.Marshal(map[string]any{"headline": "Partner at Acme"})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO research_records").
		WithArgs(pgxmock.AnyArg(), "subj-1", "profile", "Jordan Blake Acme", payload, "",
			"success", "", 0.8, now, now.Add(24*time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.UpsertRecord(context.Background(), &model.ResearchRecord{
		SubjectID:   "subj-1",
		Source:      "profile",
		Query:       "Jordan Blake Acme",
		Payload:     map[string]any{"headline": "Partner at Acme"},
		Status:      model.RecordSuccess,
		Confidence:  0.8,
		CollectedAt: now,
		ExpiresAt:   now.Add(24 * time.Hour),
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FindRecordsBySubject(t *testing.T) {
	st, mock := newMockStore(t)

	now := time.Now().UTC()
	payload, _ := json.Marshal(map[string]any{"articles": []any{"a"}})
	rows := pgxmock.NewRows([]string{
		"id", "subject_id", "source", "query", "payload", "raw", "status", "error",
		"confidence", "collected_at", "expires_at",
	}).AddRow("r1", "subj-1", "news", "q", payload, "", "success", "", 0.7, now, now.Add(time.Hour))

	mock.ExpectQuery("SELECT (.+) FROM research_records WHERE subject_id").
		WithArgs("subj-1").
		WillReturnRows(rows)

	records, err := st.FindRecordsBySubject(context.Background(), "subj-1")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "news", records[0].Source)
	assert.Equal(t, model.RecordSuccess, records[0].Status)
	assert.Equal(t, []any{"a"}, records[0].Payload["articles"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DeleteExpiredRecords(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectExec("DELETE FROM research_records WHERE expires_at").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	n, err := st.DeleteExpiredRecords(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ProfileRoundTrip(t *testing.T) {
	st, mock := newMockStore(t)

	profile := &model.AggregatedProfile{
		SubjectID:    "subj-1",
		Name:         "Jordan Blake",
		Organization: "Acme Ventures",
		SourcesUsed:  []string{"profile"},
	}
	mock.ExpectExec("INSERT INTO profiles").
		WithArgs("subj-1", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	require.NoError(t, st.UpsertProfile(context.Background(), profile))

	data, err := json.Marshal(profile)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT data FROM profiles WHERE subject_id").
		WithArgs("subj-1").
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	got, err := st.GetProfile(context.Background(), "subj-1")
	require.NoError(t, err)
	assert.Equal(t, "Jordan Blake", got.Name)
	assert.Equal(t, "Acme Ventures", got.Organization)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RunAuditTrail(t *testing.T) {
	st, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	runID, err := st.CreateRun(ctx, model.Subject{Name: "Jordan Blake"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	mock.ExpectExec("INSERT INTO run_stages").
		WithArgs(pgxmock.AnyArg(), runID, "1_collect").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	stageID, err := st.CreateStage(ctx, runID, "1_collect")
	require.NoError(t, err)

	mock.ExpectExec("UPDATE run_stages SET").
		WithArgs("complete", pgxmock.AnyArg(), stageID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, st.CompleteStage(ctx, stageID, &model.StageResult{
		Name: "1_collect", Status: model.StageComplete,
	}))

	mock.ExpectExec("UPDATE runs SET").
		WithArgs(pgxmock.AnyArg(), runID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, st.CompleteRun(ctx, runID, &model.RunResult{RunID: runID}))
	require.NoError(t, mock.ExpectationsWereMet())
}
