package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kulturkartan/kulturkartan/internal/domain"
	"github.com/kulturkartan/kulturkartan/internal/storage"
)

var _ storage.RunLogRepository = (*RunLogRepository)(nil)

// RunLogRepository persists one scraping_logs row per orchestrator run.
type RunLogRepository struct {
	db *sql.DB
}

// Append writes the run record. The entry's ID (ULID) is the primary key.
func (r *RunLogRepository) Append(ctx context.Context, entry domain.RunLog) error {
	warnings := entry.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return fmt.Errorf("marshal run warnings: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scraping_logs (id, timestamp, mode, status, events_found, failures, warnings_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UTC().Format(time.RFC3339), string(entry.Mode),
		string(entry.Status), entry.EventsFound, entry.Failures, string(warningsJSON))
	if err != nil {
		return fmt.Errorf("append run log %s: %w", entry.ID, err)
	}
	return nil
}

// List returns the newest runs first, up to limit (0 means all).
func (r *RunLogRepository) List(ctx context.Context, limit int) ([]domain.RunLog, error) {
	query := `SELECT id, timestamp, mode, status, events_found, failures, warnings_json
		FROM scraping_logs ORDER BY timestamp DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list run logs: %w", err)
	}
	defer rows.Close()

	var logs []domain.RunLog
	for rows.Next() {
		entry, err := scanRunLog(rows)
		if err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

// ClearOlderThan removes run records older than the given number of days.
func (r *RunLogRepository) ClearOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339)
	res, err := r.db.ExecContext(ctx, `DELETE FROM scraping_logs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("clear run logs older than %d days: %w", days, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear run logs older than %d days: %w", days, err)
	}
	return n, nil
}

func scanRunLog(rows *sql.Rows) (domain.RunLog, error) {
	var entry domain.RunLog
	var timestamp, mode, status, warningsJSON string
	if err := rows.Scan(&entry.ID, &timestamp, &mode, &status,
		&entry.EventsFound, &entry.Failures, &warningsJSON); err != nil {
		return domain.RunLog{}, fmt.Errorf("scan run log: %w", err)
	}
	if t, err := time.Parse(time.RFC3339, timestamp); err == nil {
		entry.Timestamp = t
	}
	entry.Mode = domain.RunMode(mode)
	entry.Status = domain.RunStatus(status)
	if err := json.Unmarshal([]byte(warningsJSON), &entry.Warnings); err != nil {
		return domain.RunLog{}, fmt.Errorf("unmarshal run warnings: %w", err)
	}
	return entry, nil
}
