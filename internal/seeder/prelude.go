// Copyright 2025 James Ross
package seeder

import (
	"context"
	"database/sql"
)

// preludeStatements relax durability and trigger checks for the duration of
// the bulk load, taken verbatim from the original seeder binary's prelude.
var preludeStatements = []string{
	"SET session_replication_role = replica",
	"ALTER TABLE events DISABLE TRIGGER ALL",
	"SET synchronous_commit = OFF",
	"TRUNCATE events, users, event_types CASCADE",
}

// restoreStatements undo preludeStatements once the bulk load completes,
// successfully or not.
var restoreStatements = []string{
	"ALTER TABLE events ENABLE TRIGGER ALL",
	"SET session_replication_role = DEFAULT",
	"SET synchronous_commit = ON",
}

func runPrelude(ctx context.Context, db *sql.DB) error {
	for _, stmt := range preludeStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func runRestore(ctx context.Context, db *sql.DB) error {
	var firstErr error
	for _, stmt := range restoreStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
