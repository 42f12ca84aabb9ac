package dolt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fpw-project/fpw/internal/storage"
	"github.com/fpw-project/fpw/internal/types"
	"github.com/fpw-project/fpw/internal/uplan"
)

const planColumns = `id, name, processing_status, authorization_status, scheduled_at,
	authorization_document, airspace_context, authorization_message, trajectory_ref,
	folder_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*types.FlightPlan, error) {
	var (
		p                      types.FlightPlan
		scheduledAt            sql.NullTime
		doc, msg               []byte
		airspace, traj, folder sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.ProcessingStatus, &p.AuthorizationStatus, &scheduledAt,
		&doc, &airspace, &msg, &traj, &folder, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	if scheduledAt.Valid {
		t := scheduledAt.Time.UTC()
		p.ScheduledAt = &t
	}
	if len(doc) > 0 {
		var d uplan.Document
		if err := json.Unmarshal(doc, &d); err != nil {
			return nil, fmt.Errorf("decoding authorization document of %s: %w", p.ID, err)
		}
		p.AuthorizationDocument = &d
	}
	if len(msg) > 0 {
		p.AuthorizationMessage = append(json.RawMessage(nil), msg...)
	}
	p.AirspaceContext = nullString(airspace)
	p.TrajectoryRef = nullString(traj)
	p.FolderID = nullString(folder)
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// planArgs returns the column values of p in planColumns order.
func planArgs(p *types.FlightPlan) ([]any, error) {
	var doc any
	if p.AuthorizationDocument != nil {
		data, err := json.Marshal(p.AuthorizationDocument)
		if err != nil {
			return nil, fmt.Errorf("encoding authorization document: %w", err)
		}
		doc = string(data)
	}
	var msg any
	if len(p.AuthorizationMessage) > 0 {
		msg = string(p.AuthorizationMessage)
	}
	return []any{
		p.ID, p.Name, string(p.ProcessingStatus), string(p.AuthorizationStatus), nullableTime(p.ScheduledAt),
		doc, nullableString(p.AirspaceContext), msg, nullableString(p.TrajectoryRef),
		nullableString(p.FolderID), p.CreatedAt.UTC(), p.UpdatedAt.UTC(),
	}, nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, events []types.Event, at time.Time) error {
	for _, e := range events {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO events (plan_id, event_type, old_value, new_value, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, e.PlanID, string(e.EventType), nullableString(e.OldValue), nullableString(e.NewValue), at); err != nil {
			return fmt.Errorf("failed to record %s event: %w", e.EventType, err)
		}
	}
	return nil
}

// CreatePlan inserts a new plan, assigning an ID and timestamps when unset.
func (s *DoltStore) CreatePlan(ctx context.Context, plan *types.FlightPlan) error {
	plan.SetDefaults()
	if plan.ID == "" {
		plan.ID = uuid.NewString()
	}
	if plan.ScheduledAt != nil {
		t := plan.ScheduledAt.UTC()
		plan.ScheduledAt = &t
	}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("invalid plan: %w", err)
	}
	now := time.Now().UTC()
	if plan.CreatedAt.IsZero() {
		plan.CreatedAt = now
	}
	plan.UpdatedAt = now

	args, err := planArgs(plan)
	if err != nil {
		return err
	}
	err = s.runInTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO flight_plans ("+planColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)", args...); err != nil {
			if isForeignKeyError(err) {
				return fmt.Errorf("folder %s: %w", deref(plan.FolderID), storage.ErrNotFound)
			}
			return fmt.Errorf("failed to insert plan: %w", err)
		}
		return insertEvents(ctx, tx, []types.Event{{PlanID: plan.ID, EventType: types.EventCreated}}, now)
	})
	if err != nil {
		return err
	}
	s.commit(ctx, "plan: create "+plan.ID)
	return nil
}

// GetPlan retrieves a plan by ID.
func (s *DoltStore) GetPlan(ctx context.Context, id string) (*types.FlightPlan, error) {
	var plan *types.FlightPlan
	err := s.withRetry(ctx, func() error {
		var err error
		plan, err = scanPlan(s.db.QueryRowContext(ctx, "SELECT "+planColumns+" FROM flight_plans WHERE id = ?", id))
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("plan %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get plan %s: %w", id, err)
	}
	return plan, nil
}

// ListPlans returns matching plans ordered by creation time.
func (s *DoltStore) ListPlans(ctx context.Context, filter types.PlanFilter) ([]*types.FlightPlan, error) {
	var (
		where []string
		args  []any
	)
	if filter.FolderID != nil {
		where = append(where, "folder_id = ?")
		args = append(args, *filter.FolderID)
	}
	if filter.ProcessingStatus != nil {
		where = append(where, "processing_status = ?")
		args = append(args, string(*filter.ProcessingStatus))
	}
	if filter.AuthorizationStatus != nil {
		where = append(where, "authorization_status = ?")
		args = append(args, string(*filter.AuthorizationStatus))
	}
	if filter.NameContains != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, "%"+strings.ToLower(filter.NameContains)+"%")
	}

	query := "SELECT " + planColumns + " FROM flight_plans"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	defer rows.Close()

	var plans []*types.FlightPlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// mutatePlan loads the plan row for update, lets fn compute the next state,
// and writes it back together with its history events.
func (s *DoltStore) mutatePlan(ctx context.Context, id, commitMsg string, fn func(cur *types.FlightPlan) (types.FlightPlan, []types.Event, error)) (*types.FlightPlan, error) {
	var result *types.FlightPlan
	err := s.runInTx(ctx, func(tx *sql.Tx) error {
		cur, err := scanPlan(tx.QueryRowContext(ctx, "SELECT "+planColumns+" FROM flight_plans WHERE id = ? FOR UPDATE", id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("plan %s: %w", id, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to load plan %s: %w", id, err)
		}
		next, extra, err := fn(cur)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		next.UpdatedAt = now

		args, err := planArgs(&next)
		if err != nil {
			return err
		}
		// drop id from the front, append it for the WHERE clause
		args = append(args[1:], id)
		_, err = tx.ExecContext(ctx, `
			UPDATE flight_plans SET name = ?, processing_status = ?, authorization_status = ?,
				scheduled_at = ?, authorization_document = ?, airspace_context = ?,
				authorization_message = ?, trajectory_ref = ?, folder_id = ?,
				created_at = ?, updated_at = ?
			WHERE id = ?
		`, args...)
		if err != nil {
			if isForeignKeyError(err) {
				return fmt.Errorf("folder %s: %w", deref(next.FolderID), storage.ErrNotFound)
			}
			return fmt.Errorf("failed to update plan %s: %w", id, err)
		}
		if err := insertEvents(ctx, tx, append(storage.PatchEvents(cur, &next), extra...), now); err != nil {
			return err
		}
		result = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.commit(ctx, commitMsg)
	return result, nil
}

// PatchPlan applies upd after checking the lifecycle rules.
func (s *DoltStore) PatchPlan(ctx context.Context, id string, upd types.PlanUpdate) (*types.FlightPlan, error) {
	return s.mutatePlan(ctx, id, "plan: update "+id, func(cur *types.FlightPlan) (types.FlightPlan, []types.Event, error) {
		next, err := storage.CheckPatch(cur, upd)
		return next, nil, err
	})
}

// ResetPlan returns the plan to unprocessed.
func (s *DoltStore) ResetPlan(ctx context.Context, id string) (*types.FlightPlan, error) {
	return s.mutatePlan(ctx, id, "plan: reset "+id, func(cur *types.FlightPlan) (types.FlightPlan, []types.Event, error) {
		return storage.ResetUpdate().Apply(*cur), []types.Event{{PlanID: id, EventType: types.EventReset}}, nil
	})
}

// ApplyDecision records a FAS decision on a pending plan.
func (s *DoltStore) ApplyDecision(ctx context.Context, id string, status types.AuthorizationStatus, message json.RawMessage) (*types.FlightPlan, error) {
	return s.mutatePlan(ctx, id, fmt.Sprintf("plan: FAS %s %s", status, id), func(cur *types.FlightPlan) (types.FlightPlan, []types.Event, error) {
		next, err := storage.CheckDecision(cur, status, message)
		return next, nil, err
	})
}

// DeletePlan removes a plan and its history.
func (s *DoltStore) DeletePlan(ctx context.Context, id string) error {
	err := s.runInTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE plan_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete events of %s: %w", id, err)
		}
		result, err := tx.ExecContext(ctx, "DELETE FROM flight_plans WHERE id = ?", id)
		if err != nil {
			return fmt.Errorf("failed to delete plan %s: %w", id, err)
		}
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("plan %s: %w", id, storage.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.commit(ctx, "plan: delete "+id)
	return nil
}

func isForeignKeyError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "foreign key") || strings.Contains(errStr, "error 1452")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
