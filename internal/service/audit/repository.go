package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/kapu/persona-avatar-bot-go/internal/service/database"
	"github.com/kapu/persona-avatar-bot-go/pkg/errors"
	"go.uber.org/zap"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS avatar_replacements (
	id           BIGSERIAL PRIMARY KEY,
	run_id       TEXT        NOT NULL,
	record_id    TEXT        NOT NULL,
	persona_name TEXT        NOT NULL,
	verdict      TEXT        NOT NULL,
	outcome      TEXT        NOT NULL,
	old_url      TEXT        NOT NULL DEFAULT '',
	new_url      TEXT        NOT NULL DEFAULT '',
	source_url   TEXT        NOT NULL DEFAULT '',
	query        TEXT        NOT NULL DEFAULT '',
	attempts     INTEGER     NOT NULL DEFAULT 0,
	error        TEXT        NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const createIndexSQL = `CREATE INDEX IF NOT EXISTS idx_avatar_replacements_record ON avatar_replacements (record_id, created_at DESC)`

const insertEntrySQL = `
INSERT INTO avatar_replacements
	(run_id, record_id, persona_name, verdict, outcome, old_url, new_url, source_url, query, attempts, error, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// Entry is one processed record.
type Entry struct {
	RunID       string
	RecordID    string
	PersonaName string
	Verdict     string
	Outcome     string
	OldURL      string
	NewURL      string
	SourceURL   string
	Query       string
	Attempts    int
	Error       string
	CreatedAt   time.Time
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Repository appends audit entries to Postgres.
type Repository struct {
	db     execer
	logger *zap.Logger
}

func NewRepository(postgres *database.PostgresService, logger *zap.Logger) *Repository {
	return newRepository(postgres.GetDB(), logger)
}

func newRepository(db execer, logger *zap.Logger) *Repository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Repository{db: db, logger: logger}
}

// EnsureSchema creates the audit table and index when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range []string{createTableSQL, createIndexSQL} {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return errors.NewPersistenceError("failed to create audit schema", "", "audit_schema", err)
		}
	}
	return nil
}

func (r *Repository) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, insertEntrySQL,
		e.RunID, e.RecordID, e.PersonaName, e.Verdict, e.Outcome,
		e.OldURL, e.NewURL, e.SourceURL, e.Query, e.Attempts, e.Error, e.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to write audit entry", zap.String("record_id", e.RecordID), zap.Error(err))
		return errors.NewPersistenceError("failed to write audit entry", e.RecordID, "audit_insert", err)
	}
	return nil
}
