package dolt

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fpw-project/fpw/internal/storage"
	"github.com/fpw-project/fpw/internal/types"
)

// CreateFolder inserts a new folder.
func (s *DoltStore) CreateFolder(ctx context.Context, folder *types.Folder) error {
	if folder.Name == "" {
		return fmt.Errorf("folder name is required")
	}
	if folder.ID == "" {
		folder.ID = uuid.NewString()
	}
	if folder.CreatedAt.IsZero() {
		folder.CreatedAt = time.Now().UTC()
	}
	if _, err := s.execContext(ctx, "INSERT INTO folders (id, name, created_at) VALUES (?, ?, ?)",
		folder.ID, folder.Name, folder.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("failed to create folder: %w", err)
	}
	s.commit(ctx, "folder: create "+folder.ID)
	return nil
}

// GetFolder retrieves a folder by ID.
func (s *DoltStore) GetFolder(ctx context.Context, id string) (*types.Folder, error) {
	var f types.Folder
	err := s.withRetry(ctx, func() error {
		return s.db.QueryRowContext(ctx, "SELECT id, name, created_at FROM folders WHERE id = ?", id).
			Scan(&f.ID, &f.Name, &f.CreatedAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("folder %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder %s: %w", id, err)
	}
	f.CreatedAt = f.CreatedAt.UTC()
	return &f, nil
}

// ListFolders returns all folders ordered by name.
func (s *DoltStore) ListFolders(ctx context.Context) ([]*types.Folder, error) {
	rows, err := s.queryContext(ctx, "SELECT id, name, created_at FROM folders ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()

	var folders []*types.Folder
	for rows.Next() {
		var f types.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		f.CreatedAt = f.CreatedAt.UTC()
		folders = append(folders, &f)
	}
	return folders, rows.Err()
}

// RenameFolder changes a folder's name.
func (s *DoltStore) RenameFolder(ctx context.Context, id, name string) error {
	if name == "" {
		return fmt.Errorf("folder name is required")
	}
	result, err := s.execContext(ctx, "UPDATE folders SET name = ? WHERE id = ?", name, id)
	if err != nil {
		return fmt.Errorf("failed to rename folder %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		// MySQL reports 0 affected rows when the name is unchanged.
		if _, gerr := s.GetFolder(ctx, id); gerr != nil {
			return gerr
		}
	}
	s.commit(ctx, "folder: rename "+id)
	return nil
}

// DeleteFolder removes a folder; its plans and their events cascade.
func (s *DoltStore) DeleteFolder(ctx context.Context, id string) (int, error) {
	var deleted int
	err := s.runInTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM folders WHERE id = ?", id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to look up folder %s: %w", id, err)
		}
		if exists == 0 {
			return fmt.Errorf("folder %s: %w", id, storage.ErrNotFound)
		}
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM flight_plans WHERE folder_id = ?", id).Scan(&deleted); err != nil {
			return fmt.Errorf("failed to count plans in folder %s: %w", id, err)
		}
		// Delete plans explicitly; cascade support varies across Dolt versions.
		if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE plan_id IN (SELECT id FROM flight_plans WHERE folder_id = ?)", id); err != nil {
			return fmt.Errorf("failed to delete events: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM flight_plans WHERE folder_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete plans: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM folders WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete folder: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.commit(ctx, "folder: delete "+id)
	return deleted, nil
}
