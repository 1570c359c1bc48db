// Package store provides durable persistence for identities, sessions,
// research records, and aggregated profiles. The orchestrator treats it as
// a record store with keyed upserts; no query language leaks above this
// interface.
package store

import (
	"context"

	"github.com/foundry-bot/partner-research/internal/model"
)

// Store defines the persistence interface for the research engine.
type Store interface {
	// Identities
	CreateIdentity(ctx context.Context, identity *model.Identity) error
	GetIdentity(ctx context.Context, id string) (*model.Identity, error)
	ListIdentities(ctx context.Context) ([]model.Identity, error)
	UpdateIdentity(ctx context.Context, identity *model.Identity) error
	DeleteIdentity(ctx context.Context, id string) error

	// Sessions (1:1 with identities, overwritten whole)
	GetSession(ctx context.Context, identityID string) (*model.Session, error)
	PutSession(ctx context.Context, session *model.Session) error
	DeleteSession(ctx context.Context, identityID string) error

	// Research records (keyed upsert by subject+source)
	UpsertRecord(ctx context.Context, record *model.ResearchRecord) error
	FindRecordsBySubject(ctx context.Context, subjectID string) ([]model.ResearchRecord, error)
	DeleteExpiredRecords(ctx context.Context) (int, error)

	// Aggregated profiles
	UpsertProfile(ctx context.Context, profile *model.AggregatedProfile) error
	GetProfile(ctx context.Context, subjectID string) (*model.AggregatedProfile, error)

	// Run audit trail
	CreateRun(ctx context.Context, subject model.Subject) (string, error)
	CompleteRun(ctx context.Context, runID string, result *model.RunResult) error
	CreateStage(ctx context.Context, runID, name string) (string, error)
	CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
