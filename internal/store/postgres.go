package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/foundry-bot/partner-research/internal/model"
)

// PgxPool is the subset of pgxpool.Pool the store uses. pgxmock's pool
// satisfies it in tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool PgxPool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS identities (
	id                  UUID PRIMARY KEY,
	label               TEXT NOT NULL,
	enc_email           TEXT NOT NULL,
	enc_password        TEXT NOT NULL,
	enc_recovery_email  TEXT NOT NULL DEFAULT '',
	enc_recovery_pass   TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'active',
	scrapes_today       INT NOT NULL DEFAULT 0,
	total_scrapes       INT NOT NULL DEFAULT 0,
	failure_count       INT NOT NULL DEFAULT 0,
	last_used_at        TIMESTAMPTZ,
	cooldown_until      TIMESTAMPTZ,
	scrapes_day_reset   TIMESTAMPTZ,
	last_error          TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sessions (
	identity_id  UUID PRIMARY KEY REFERENCES identities(id) ON DELETE CASCADE,
	enc_cookies  TEXT NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS research_records (
	id           UUID PRIMARY KEY,
	subject_id   TEXT NOT NULL,
	source       TEXT NOT NULL,
	query        TEXT NOT NULL DEFAULT '',
	payload      JSONB,
	raw          TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL,
	error        TEXT NOT NULL DEFAULT '',
	confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
	collected_at TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL,
	UNIQUE(subject_id, source)
);

CREATE TABLE IF NOT EXISTS profiles (
	subject_id  TEXT PRIMARY KEY,
	data        JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id         UUID PRIMARY KEY,
	subject    JSONB NOT NULL,
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         UUID PRIMARY KEY,
	run_id     UUID NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_identities_status ON identities(status);
CREATE INDEX IF NOT EXISTS idx_records_subject ON research_records(subject_id);
CREATE INDEX IF NOT EXISTS idx_records_expires ON research_records(expires_at);
CREATE INDEX IF NOT EXISTS idx_run_stages_run ON run_stages(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateIdentity(ctx context.Context, identity *model.Identity) error {
	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	if identity.Status == "" {
		identity.Status = model.IdentityActive
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO identities (id, label, enc_email, enc_password, enc_recovery_email, enc_recovery_pass,
			status, scrapes_today, total_scrapes, failure_count, last_used_at, cooldown_until,
			scrapes_day_reset, last_error, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		identity.ID, identity.Label, identity.EncryptedEmail, identity.EncryptedPassword,
		identity.EncryptedRecoveryEmail, identity.EncryptedRecoveryPassword,
		string(identity.Status), identity.ScrapesToday, identity.TotalScrapes, identity.FailureCount,
		identity.LastUsedAt, identity.CooldownUntil, identity.ScrapesDayReset,
		identity.LastErrorMessage, now, now,
	)
	return eris.Wrap(err, "postgres: insert identity")
}

const pgIdentityColumns = `id, label, enc_email, enc_password, enc_recovery_email, enc_recovery_pass,
	status, scrapes_today, total_scrapes, failure_count, last_used_at, cooldown_until,
	scrapes_day_reset, last_error, created_at, updated_at`

func (s *PostgresStore) GetIdentity(ctx context.Context, id string) (*model.Identity, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+pgIdentityColumns+` FROM identities WHERE id = $1`, id)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: identity not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get identity")
	}
	return identity, nil
}

func (s *PostgresStore) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+pgIdentityColumns+` FROM identities ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list identities")
	}
	defer rows.Close()

	var identities []model.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan identity")
		}
		identities = append(identities, *identity)
	}
	return identities, eris.Wrap(rows.Err(), "postgres: iterate identities")
}

func (s *PostgresStore) UpdateIdentity(ctx context.Context, identity *model.Identity) error {
	identity.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE identities SET label = $1, status = $2, scrapes_today = $3, total_scrapes = $4,
			failure_count = $5, last_used_at = $6, cooldown_until = $7, scrapes_day_reset = $8,
			last_error = $9, updated_at = $10
		 WHERE id = $11`,
		identity.Label, string(identity.Status), identity.ScrapesToday, identity.TotalScrapes,
		identity.FailureCount, identity.LastUsedAt, identity.CooldownUntil, identity.ScrapesDayReset,
		identity.LastErrorMessage, identity.UpdatedAt, identity.ID,
	)
	if err != nil {
		return eris.Wrap(err, "postgres: update identity")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: identity not found: %s", identity.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteIdentity(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	return eris.Wrap(err, "postgres: delete identity")
}

func (s *PostgresStore) GetSession(ctx context.Context, identityID string) (*model.Session, error) {
	var sess model.Session
	err := s.pool.QueryRow(ctx,
		`SELECT identity_id, enc_cookies, expires_at, updated_at FROM sessions WHERE identity_id = $1`,
		identityID,
	).Scan(&sess.IdentityID, &sess.EncryptedCookies, &sess.ExpiresAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get session")
	}
	return &sess, nil
}

func (s *PostgresStore) PutSession(ctx context.Context, session *model.Session) error {
	session.UpdatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (identity_id, enc_cookies, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (identity_id) DO UPDATE SET
			enc_cookies = excluded.enc_cookies,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		session.IdentityID, session.EncryptedCookies, session.ExpiresAt, session.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: put session")
}

func (s *PostgresStore) DeleteSession(ctx context.Context, identityID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE identity_id = $1`, identityID)
	return eris.Wrap(err, "postgres: delete session")
}

func (s *PostgresStore) UpsertRecord(ctx context.Context, record *model.ResearchRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal payload")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO research_records (id, subject_id, source, query, payload, raw, status, error,
			confidence, collected_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (subject_id, source) DO UPDATE SET
			query = excluded.query,
			payload = excluded.payload,
			raw = excluded.raw,
			status = excluded.status,
			error = excluded.error,
			confidence = excluded.confidence,
			collected_at = excluded.collected_at,
			expires_at = excluded.expires_at`,
		record.ID, record.SubjectID, record.Source, record.Query, payload, record.Raw,
		string(record.Status), record.ErrorMessage, record.Confidence,
		record.CollectedAt, record.ExpiresAt,
	)
	return eris.Wrap(err, "postgres: upsert record")
}

func (s *PostgresStore) FindRecordsBySubject(ctx context.Context, subjectID string) ([]model.ResearchRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subject_id, source, query, payload, raw, status, error, confidence, collected_at, expires_at
		 FROM research_records WHERE subject_id = $1 ORDER BY collected_at DESC`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find records")
	}
	defer rows.Close()

	var records []model.ResearchRecord
	for rows.Next() {
		var rec model.ResearchRecord
		var payload []byte
		var status string
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.Source, &rec.Query, &payload, &rec.Raw,
			&status, &rec.ErrorMessage, &rec.Confidence, &rec.CollectedAt, &rec.ExpiresAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		rec.Status = model.RecordStatus(status)
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &rec.Payload); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal payload")
			}
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "postgres: iterate records")
}

func (s *PostgresStore) DeleteExpiredRecords(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM research_records WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired records")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) UpsertProfile(ctx context.Context, profile *model.AggregatedProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal profile")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO profiles (subject_id, data, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (subject_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		profile.SubjectID, data, profile.UpdatedAt,
	)
	return eris.Wrap(err, "postgres: upsert profile")
}

func (s *PostgresStore) GetProfile(ctx context.Context, subjectID string) (*model.AggregatedProfile, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM profiles WHERE subject_id = $1`, subjectID,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get profile")
	}
	var profile model.AggregatedProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal profile")
	}
	return &profile, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, subject model.Subject) (string, error) {
	id := uuid.New().String()
	subjectJSON, err := json.Marshal(subject)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal subject")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, subject) VALUES ($1, $2)`,
		id, subjectJSON,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert run")
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run result")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE runs SET result = $1, updated_at = now() WHERE id = $2`,
		resultJSON, runID,
	)
	return eris.Wrap(err, "postgres: complete run")
}

func (s *PostgresStore) CreateStage(ctx context.Context, runID, name string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_stages (id, run_id, name, status) VALUES ($1, $2, $3, 'running')`,
		id, runID, name,
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: insert stage")
	}
	return id, nil
}

func (s *PostgresStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage result")
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE run_stages SET status = $1, result = $2 WHERE id = $3`,
		string(result.Status), resultJSON, stageID,
	)
	return eris.Wrap(err, "postgres: complete stage")
}
