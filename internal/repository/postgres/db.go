package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/jwalitptl/comms-notebook/internal/config"
)

func NewDB(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS communications (
	id                UUID PRIMARY KEY,
	student_enrolment TEXT NOT NULL,
	subject_code      TEXT NOT NULL,
	teacher_email     TEXT NOT NULL,
	message           TEXT NOT NULL,
	comment           TEXT,
	action_taken      TEXT,
	timestamp         TIMESTAMPTZ NOT NULL,
	pool_id           UUID,
	state             TEXT NOT NULL DEFAULT 'pending',
	created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS communications_timestamp_idx ON communications (timestamp);
CREATE INDEX IF NOT EXISTS communications_student_idx ON communications (student_enrolment);

CREATE TABLE IF NOT EXISTS global_metadata (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Migrate creates the tables the report engine reads and writes.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
