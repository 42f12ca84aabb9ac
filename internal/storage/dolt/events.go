package dolt

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fpw-project/fpw/internal/types"
)

// GetEvents retrieves a plan's history, newest first.
func (s *DoltStore) GetEvents(ctx context.Context, planID string, limit int) ([]*types.Event, error) {
	query := `
		SELECT id, plan_id, event_type, old_value, new_value, created_at
		FROM events
		WHERE plan_id = ?
		ORDER BY created_at DESC, id DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.queryContext(ctx, query, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}
	defer rows.Close()

	var events []*types.Event
	for rows.Next() {
		var event types.Event
		var oldValue, newValue sql.NullString
		if err := rows.Scan(&event.ID, &event.PlanID, &event.EventType, &oldValue, &newValue, &event.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		event.OldValue = nullString(oldValue)
		event.NewValue = nullString(newValue)
		event.CreatedAt = event.CreatedAt.UTC()
		events = append(events, &event)
	}
	return events, rows.Err()
}
