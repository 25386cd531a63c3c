// Package store persists extracted actions to Postgres. One row exists per
// email and recipient action, keyed by (partition_key, row_key); the done
// flag defaults to false and is owned by the retrieval API afterwards.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/haneul-labs/mailaction/pkg/logging"
	"github.com/haneul-labs/mailaction/pkg/pipeline"
)

// tagSeparator joins the tag list into the stored string column.
const tagSeparator = ";"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS actions (
    partition_key   TEXT NOT NULL,
    row_key         TEXT NOT NULL,
    subject         TEXT NOT NULL DEFAULT '',
    title           TEXT NOT NULL DEFAULT '',
    assignee        TEXT NOT NULL DEFAULT '',
    due             TEXT NOT NULL DEFAULT '',
    priority        TEXT NOT NULL DEFAULT '',
    action_type     TEXT NOT NULL DEFAULT '',
    tags            TEXT NOT NULL DEFAULT '',
    confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
    notes           TEXT NOT NULL DEFAULT '',
    received_at     TEXT NOT NULL DEFAULT '',
    conversation_id TEXT NOT NULL DEFAULT '',
    web_link        TEXT NOT NULL DEFAULT '',
    done            BOOLEAN NOT NULL DEFAULT FALSE,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (partition_key, row_key)
);

CREATE INDEX IF NOT EXISTS idx_actions_assignee ON actions (partition_key, assignee);
CREATE INDEX IF NOT EXISTS idx_actions_done ON actions (partition_key, done);
`

const upsertSQL = `
INSERT INTO actions (
    partition_key, row_key, subject, title, assignee, due, priority,
    action_type, tags, confidence, notes, received_at, conversation_id, web_link
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
ON CONFLICT (partition_key, row_key) DO UPDATE SET
    subject         = EXCLUDED.subject,
    title           = EXCLUDED.title,
    assignee        = EXCLUDED.assignee,
    due             = EXCLUDED.due,
    priority        = EXCLUDED.priority,
    action_type     = EXCLUDED.action_type,
    tags            = EXCLUDED.tags,
    confidence      = EXCLUDED.confidence,
    notes           = EXCLUDED.notes,
    received_at     = EXCLUDED.received_at,
    conversation_id = EXCLUDED.conversation_id,
    web_link        = EXCLUDED.web_link,
    updated_at      = now()
`

// Repository is the interface the batch runner needs from the store.
type Repository interface {
	UpsertAction(ctx context.Context, tenantID string, email *pipeline.NormalizedEmail, action *pipeline.ResolvedAction) error
}

// ActionRepository persists actions through a pgx connection pool.
type ActionRepository struct {
	pool *pgxpool.Pool
	log  logging.Logger
}

var _ Repository = (*ActionRepository)(nil)

// NewActionRepository creates a repository over an existing pool. The pool
// is owned by the caller.
func NewActionRepository(pool *pgxpool.Pool, log logging.Logger) *ActionRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ActionRepository{
		pool: pool,
		log:  log.With(logging.F("component", "action_store")),
	}
}

// Connect opens a pool for the given DSN and verifies connectivity.
func Connect(ctx context.Context, dsn string, log logging.Logger) (*ActionRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return NewActionRepository(pool, log), nil
}

// Close releases the underlying pool.
func (r *ActionRepository) Close() {
	r.pool.Close()
}

// EnsureSchema creates the actions table and its indexes if missing.
func (r *ActionRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensuring actions schema: %w", err)
	}
	return nil
}

// actionRowArgs builds the upsert parameters in column order. Kept apart
// from the query so the row shape is testable without a live pool.
func actionRowArgs(tenantID, rowKey string, email *pipeline.NormalizedEmail, action *pipeline.ResolvedAction) []any {
	return []any{
		tenantID,
		rowKey,
		email.Subject,
		action.Title,
		action.Assignee,
		action.Due,
		action.Priority,
		string(action.Type),
		strings.Join(action.Tags, tagSeparator),
		action.Confidence,
		action.Notes,
		email.ReceivedAt,
		email.ConversationID,
		"",
	}
}

// UpsertAction writes one action row. The row key is the document key of
// chunk 0, so the row lines up with the first search chunk of the email.
func (r *ActionRepository) UpsertAction(ctx context.Context, tenantID string, email *pipeline.NormalizedEmail, action *pipeline.ResolvedAction) error {
	if action == nil {
		return nil
	}

	rowKey := pipeline.DocumentKey(email.EmailID, 0)

	_, err := r.pool.Exec(ctx, upsertSQL, actionRowArgs(tenantID, rowKey, email, action)...)
	if err != nil {
		return fmt.Errorf("upserting action %s/%s: %w", tenantID, rowKey, err)
	}

	r.log.Debug("action stored",
		logging.F("row_key", rowKey),
		logging.F("title", action.Title))
	return nil
}
