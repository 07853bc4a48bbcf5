package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/bqualhato/cnpjdata/internal/dataset"
)

// MergePolicy names the duplicate-key strategy applied by batch upserts.
// The dataset is distributed as overlapping archive generations, so the
// default deliberately lets the last imported row win.
type MergePolicy int

const (
	// ReplaceOnConflict replaces an existing row with the same key.
	ReplaceOnConflict MergePolicy = iota
	// KeepFirst silently drops rows whose key already exists.
	KeepFirst
	// AppendOnly performs plain inserts; duplicate keys fail the batch.
	AppendOnly
)

func (p MergePolicy) verb() string {
	switch p {
	case ReplaceOnConflict:
		return "INSERT OR REPLACE INTO"
	case KeepFirst:
		return "INSERT OR IGNORE INTO"
	default:
		return "INSERT INTO"
	}
}

// insertSQL renders the positional insert statement for one table. Tables
// without a key (socios) always get a plain insert; conflict handling is
// meaningless there.
func insertSQL(spec dataset.TableSpec, policy MergePolicy) string {
	verb := policy.verb()
	if len(spec.KeyColumns) == 0 {
		verb = AppendOnly.verb()
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(spec.Columns)), ", ")
	return fmt.Sprintf("%s %s VALUES (%s)", verb, spec.Name, placeholders)
}

// UpsertBatch writes one batch of parsed records inside a single
// transaction. Either the whole batch commits or none of it does; earlier
// batches of the same file stay committed either way.
func UpsertBatch(ctx context.Context, conn *sql.DB, spec dataset.TableSpec, policy MergePolicy, batch []dataset.Record) error {
	if len(batch) == 0 {
		return nil
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch tx for %s: %w", spec.Name, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertSQL(spec, policy))
	if err != nil {
		return fmt.Errorf("prepare insert for %s: %w", spec.Name, err)
	}
	defer stmt.Close()

	for _, rec := range batch {
		if _, err := stmt.ExecContext(ctx, rec.Values()...); err != nil {
			return fmt.Errorf("insert into %s: %w", spec.Name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch for %s: %w", spec.Name, err)
	}
	return nil
}
