package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Archive lifecycle events recorded in the load log.
const (
	EventDownloaded = "downloaded"
	EventImported   = "imported"
	EventError      = "error"
)

const eventSequenceSQL = `CREATE SEQUENCE IF NOT EXISTS carga_log_id_seq;`

const eventTableSQL = `
CREATE TABLE IF NOT EXISTS carga_log (
    log_id          BIGINT PRIMARY KEY DEFAULT nextval('carga_log_id_seq'),
    archive         VARCHAR NOT NULL,
    event           VARCHAR NOT NULL,
    event_timestamp TIMESTAMP NOT NULL,
    message         VARCHAR,
    row_count       BIGINT,
    duration_ms     BIGINT
);
CREATE INDEX IF NOT EXISTS idx_carga_log_archive ON carga_log (archive, event);
`

// initEventLog creates the load-log sequence and table. Called from
// InitSchema.
func initEventLog(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, eventSequenceSQL); err != nil {
		return fmt.Errorf("create load log sequence: %w", err)
	}
	if _, err := conn.ExecContext(ctx, eventTableSQL); err != nil {
		return fmt.Errorf("create load log table: %w", err)
	}
	return nil
}

// LogArchiveEvent records one lifecycle event for an archive.
func LogArchiveEvent(ctx context.Context, conn *sql.DB, archive, event, message string, rowCount int64, duration time.Duration) error {
	query := `
        INSERT INTO carga_log (archive, event, event_timestamp, message, row_count, duration_ms)
        VALUES (?, ?, ?, ?, ?, ?);
    `
	_, err := conn.ExecContext(ctx, query,
		archive,
		event,
		time.Now().UTC(),
		sql.NullString{String: message, Valid: message != ""},
		sql.NullInt64{Int64: rowCount, Valid: rowCount >= 0},
		sql.NullInt64{Int64: duration.Milliseconds(), Valid: duration > 0},
	)
	if err != nil {
		return fmt.Errorf("failed to log event '%s' for '%s': %w", event, archive, err)
	}
	return nil
}

// ImportedArchives reports which of the given archives have ever recorded a
// successful import event.
func ImportedArchives(ctx context.Context, conn *sql.DB, archives []string) (map[string]bool, error) {
	imported := make(map[string]bool)
	if len(archives) == 0 {
		return imported, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(archives)), ", ")
	query := fmt.Sprintf(`
        SELECT DISTINCT archive
        FROM carga_log
        WHERE event = ? AND archive IN (%s);
    `, placeholders)

	args := make([]any, 0, len(archives)+1)
	args = append(args, EventImported)
	for _, a := range archives {
		args = append(args, a)
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed query import status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var archive string
		if err := rows.Scan(&archive); err != nil {
			return nil, fmt.Errorf("failed scanning import status row: %w", err)
		}
		imported[archive] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating import status rows: %w", err)
	}
	return imported, nil
}

// ArchiveEvent is one load-log record, newest first in history listings.
type ArchiveEvent struct {
	Archive   string
	Event     string
	Timestamp time.Time
	Message   string
	RowCount  int64
	Duration  time.Duration
}

// ArchiveHistory returns the most recent load-log records, newest first.
func ArchiveHistory(ctx context.Context, conn *sql.DB, limit int) ([]ArchiveEvent, error) {
	query := `
        SELECT archive, event, event_timestamp, message, row_count, duration_ms
        FROM carga_log
        ORDER BY event_timestamp DESC, log_id DESC
        LIMIT ?;
    `
	rows, err := conn.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query load log: %w", err)
	}
	defer rows.Close()

	var events []ArchiveEvent
	for rows.Next() {
		var ev ArchiveEvent
		var message sql.NullString
		var rowCount, durationMs sql.NullInt64
		if err := rows.Scan(&ev.Archive, &ev.Event, &ev.Timestamp, &message, &rowCount, &durationMs); err != nil {
			return nil, fmt.Errorf("failed to scan load log row: %w", err)
		}
		ev.Message = message.String
		ev.RowCount = -1
		if rowCount.Valid {
			ev.RowCount = rowCount.Int64
		}
		ev.Duration = time.Duration(durationMs.Int64) * time.Millisecond
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating load log rows: %w", err)
	}
	return events, nil
}
