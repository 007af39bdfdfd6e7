package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/steveyegge/seoloop/internal/events"
)

// StoreEvent stores an activity event
func (s *SQLiteStorage) StoreEvent(ctx context.Context, event *events.Event) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (id, type, timestamp, repo_id, run_id, severity, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		event.ID,
		string(event.Type),
		formatTime(event.Timestamp),
		event.RepoID,
		event.RunID,
		string(event.Severity),
		event.Message,
		string(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store event (type=%s, repo=%s): %w", event.Type, event.RepoID, err)
	}
	return nil
}

// GetEvents retrieves events matching the filter, most recent first
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter events.EventFilter) ([]*events.Event, error) {
	query := `
		SELECT id, type, timestamp, repo_id, run_id, severity, message, data
		FROM events
		WHERE 1=1
	`
	args := []interface{}{}

	if filter.RepoID != "" {
		query += " AND repo_id = ?"
		args = append(args, filter.RepoID)
	}
	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.Type != "" {
		query += " AND type = ?"
		args = append(args, string(filter.Type))
	}
	if filter.Severity != "" {
		query += " AND severity = ?"
		args = append(args, string(filter.Severity))
	}
	if !filter.AfterTime.IsZero() {
		query += " AND timestamp > ?"
		args = append(args, formatTime(filter.AfterTime))
	}

	query += " ORDER BY timestamp DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*events.Event, error) {
	var result []*events.Event

	for rows.Next() {
		var event events.Event
		var timestamp, dataJSON string

		if err := rows.Scan(
			&event.ID,
			&event.Type,
			&timestamp,
			&event.RepoID,
			&event.RunID,
			&event.Severity,
			&event.Message,
			&dataJSON,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		ts, err := parseTime(timestamp)
		if err != nil {
			return nil, err
		}
		event.Timestamp = ts

		event.Data = make(map[string]interface{})
		if dataJSON != "" && dataJSON != "{}" {
			if err := json.Unmarshal([]byte(dataJSON), &event.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}

		result = append(result, &event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating event rows: %w", err)
	}
	return result, nil
}

// CleanupEventsByAge deletes events older than retentionDays and returns
// how many were removed. A retention of 0 keeps everything.
func (s *SQLiteStorage) CleanupEventsByAge(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("retention days cannot be negative")
	}
	if retentionDays == 0 {
		return 0, nil
	}

	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE timestamp < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("failed to delete old events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return int(n), nil
}
