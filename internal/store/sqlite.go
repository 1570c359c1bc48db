package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/foundry-bot/partner-research/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS identities (
	id                  TEXT PRIMARY KEY,
	label               TEXT NOT NULL,
	enc_email           TEXT NOT NULL,
	enc_password        TEXT NOT NULL,
	enc_recovery_email  TEXT NOT NULL DEFAULT '',
	enc_recovery_pass   TEXT NOT NULL DEFAULT '',
	status              TEXT NOT NULL DEFAULT 'active',
	scrapes_today       INTEGER NOT NULL DEFAULT 0,
	total_scrapes       INTEGER NOT NULL DEFAULT 0,
	failure_count       INTEGER NOT NULL DEFAULT 0,
	last_used_at        DATETIME,
	cooldown_until      DATETIME,
	scrapes_day_reset   DATETIME,
	last_error          TEXT NOT NULL DEFAULT '',
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	identity_id  TEXT PRIMARY KEY REFERENCES identities(id) ON DELETE CASCADE,
	enc_cookies  TEXT NOT NULL,
	expires_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS research_records (
	id          TEXT PRIMARY KEY,
	subject_id  TEXT NOT NULL,
	source      TEXT NOT NULL,
	query       TEXT NOT NULL DEFAULT '',
	payload     TEXT,
	raw         TEXT NOT NULL DEFAULT '',
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	confidence  REAL NOT NULL DEFAULT 0,
	collected_at DATETIME NOT NULL,
	expires_at   DATETIME NOT NULL,
	UNIQUE(subject_id, source)
);

CREATE TABLE IF NOT EXISTS profiles (
	subject_id  TEXT PRIMARY KEY,
	data        TEXT NOT NULL,
	updated_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	subject    TEXT NOT NULL,
	result     TEXT,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	started_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_identities_status ON identities(status);
CREATE INDEX IF NOT EXISTS idx_records_subject ON research_records(subject_id);
CREATE INDEX IF NOT EXISTS idx_records_expires ON research_records(expires_at);
CREATE INDEX IF NOT EXISTS idx_run_stages_run ON run_stages(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateIdentity(ctx context.Context, identity *model.Identity) error {
	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	if identity.Status == "" {
		identity.Status = model.IdentityActive
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (id, label, enc_email, enc_password, enc_recovery_email, enc_recovery_pass,
			status, scrapes_today, total_scrapes, failure_count, last_used_at, cooldown_until,
			scrapes_day_reset, last_error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		identity.ID, identity.Label, identity.EncryptedEmail, identity.EncryptedPassword,
		identity.EncryptedRecoveryEmail, identity.EncryptedRecoveryPassword,
		string(identity.Status), identity.ScrapesToday, identity.TotalScrapes, identity.FailureCount,
		identity.LastUsedAt, identity.CooldownUntil, identity.ScrapesDayReset,
		identity.LastErrorMessage, now, now,
	)
	return eris.Wrap(err, "sqlite: insert identity")
}

const identityColumns = `id, label, enc_email, enc_password, enc_recovery_email, enc_recovery_pass,
	status, scrapes_today, total_scrapes, failure_count, last_used_at, cooldown_until,
	scrapes_day_reset, last_error, created_at, updated_at`

func scanIdentity(row interface{ Scan(...any) error }) (*model.Identity, error) {
	var id model.Identity
	var status string
	err := row.Scan(&id.ID, &id.Label, &id.EncryptedEmail, &id.EncryptedPassword,
		&id.EncryptedRecoveryEmail, &id.EncryptedRecoveryPassword,
		&status, &id.ScrapesToday, &id.TotalScrapes, &id.FailureCount,
		&id.LastUsedAt, &id.CooldownUntil, &id.ScrapesDayReset,
		&id.LastErrorMessage, &id.CreatedAt, &id.UpdatedAt)
	if err != nil {
		return nil, err
	}
	id.Status = model.IdentityStatus(status)
	return &id, nil
}

func (s *SQLiteStore) GetIdentity(ctx context.Context, id string) (*model.Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
	identity, err := scanIdentity(row)
	if err == sql.ErrNoRows {
		return nil, eris.Errorf("sqlite: identity not found: %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get identity")
	}
	return identity, nil
}

func (s *SQLiteStore) ListIdentities(ctx context.Context) ([]model.Identity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY created_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list identities")
	}
	defer rows.Close()

	var identities []model.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan identity")
		}
		identities = append(identities, *identity)
	}
	return identities, eris.Wrap(rows.Err(), "sqlite: iterate identities")
}

func (s *SQLiteStore) UpdateIdentity(ctx context.Context, identity *model.Identity) error {
	identity.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE identities SET label = ?, status = ?, scrapes_today = ?, total_scrapes = ?,
			failure_count = ?, last_used_at = ?, cooldown_until = ?, scrapes_day_reset = ?,
			last_error = ?, updated_at = ?
		 WHERE id = ?`,
		identity.Label, string(identity.Status), identity.ScrapesToday, identity.TotalScrapes,
		identity.FailureCount, identity.LastUsedAt, identity.CooldownUntil, identity.ScrapesDayReset,
		identity.LastErrorMessage, identity.UpdatedAt, identity.ID,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: update identity")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return eris.Errorf("sqlite: identity not found: %s", identity.ID)
	}
	return nil
}

func (s *SQLiteStore) DeleteIdentity(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	return eris.Wrap(err, "sqlite: delete identity")
}

func (s *SQLiteStore) GetSession(ctx context.Context, identityID string) (*model.Session, error) {
	var sess model.Session
	err := s.db.QueryRowContext(ctx,
		`SELECT identity_id, enc_cookies, expires_at, updated_at FROM sessions WHERE identity_id = ?`,
		identityID,
	).Scan(&sess.IdentityID, &sess.EncryptedCookies, &sess.ExpiresAt, &sess.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get session")
	}
	return &sess, nil
}

func (s *SQLiteStore) PutSession(ctx context.Context, session *model.Session) error {
	session.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (identity_id, enc_cookies, expires_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(identity_id) DO UPDATE SET
			enc_cookies = excluded.enc_cookies,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		session.IdentityID, session.EncryptedCookies, session.ExpiresAt, session.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: put session")
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, identityID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE identity_id = ?`, identityID)
	return eris.Wrap(err, "sqlite: delete session")
}

func (s *SQLiteStore) UpsertRecord(ctx context.Context, record *model.ResearchRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	payload, err := json.Marshal(record.Payload)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal payload")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO research_records (id, subject_id, source, query, payload, raw, status, error,
			confidence, collected_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(subject_id, source) DO UPDATE SET
			query = excluded.query,
			payload = excluded.payload,
			raw = excluded.raw,
			status = excluded.status,
			error = excluded.error,
			confidence = excluded.confidence,
			collected_at = excluded.collected_at,
			expires_at = excluded.expires_at`,
		record.ID, record.SubjectID, record.Source, record.Query, string(payload), record.Raw,
		string(record.Status), record.ErrorMessage, record.Confidence,
		record.CollectedAt, record.ExpiresAt,
	)
	return eris.Wrap(err, "sqlite: upsert record")
}

func (s *SQLiteStore) FindRecordsBySubject(ctx context.Context, subjectID string) ([]model.ResearchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, subject_id, source, query, payload, raw, status, error, confidence, collected_at, expires_at
		 FROM research_records WHERE subject_id = ? ORDER BY collected_at DESC`,
		subjectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find records")
	}
	defer rows.Close()

	var records []model.ResearchRecord
	for rows.Next() {
		var rec model.ResearchRecord
		var payload sql.NullString
		var status string
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.Source, &rec.Query, &payload, &rec.Raw,
			&status, &rec.ErrorMessage, &rec.Confidence, &rec.CollectedAt, &rec.ExpiresAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		rec.Status = model.RecordStatus(status)
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &rec.Payload); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal payload")
			}
		}
		records = append(records, rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: iterate records")
}

func (s *SQLiteStore) DeleteExpiredRecords(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM research_records WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired records")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) UpsertProfile(ctx context.Context, profile *model.AggregatedProfile) error {
	profile.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(profile)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal profile")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO profiles (subject_id, data, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(subject_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		profile.SubjectID, string(data), profile.UpdatedAt,
	)
	return eris.Wrap(err, "sqlite: upsert profile")
}

func (s *SQLiteStore) GetProfile(ctx context.Context, subjectID string) (*model.AggregatedProfile, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM profiles WHERE subject_id = ?`, subjectID,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get profile")
	}
	var profile model.AggregatedProfile
	if err := json.Unmarshal([]byte(data), &profile); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal profile")
	}
	return &profile, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, subject model.Subject) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	subjectJSON, err := json.Marshal(subject)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal subject")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, subject, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		id, string(subjectJSON), now, now,
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert run")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, result *model.RunResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run result")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE runs SET result = ?, updated_at = ? WHERE id = ?`,
		string(resultJSON), time.Now().UTC(), runID,
	)
	return eris.Wrap(err, "sqlite: complete run")
}

func (s *SQLiteStore) CreateStage(ctx context.Context, runID, name string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_stages (id, run_id, name, status, started_at) VALUES (?, ?, ?, 'running', ?)`,
		id, runID, name, time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: insert stage")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage result")
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE run_stages SET status = ?, result = ? WHERE id = ?`,
		string(result.Status), string(resultJSON), stageID,
	)
	return eris.Wrap(err, "sqlite: complete stage")
}
