package planops

import (
	"context"
	"fmt"
	"strings"

	"github.com/fpw-project/fpw/internal/types"
)

// CreateFolder creates a folder named name.
func (s *Service) CreateFolder(ctx context.Context, name string) (*types.Folder, error) {
	f := &types.Folder{Name: strings.TrimSpace(name)}
	if err := s.store.CreateFolder(ctx, f); err != nil {
		return nil, fmt.Errorf("failed to create folder %q: %w", name, err)
	}
	return f, nil
}

// RenameFolder changes a folder's name.
func (s *Service) RenameFolder(ctx context.Context, id, name string) error {
	return s.store.RenameFolder(ctx, id, strings.TrimSpace(name))
}

// DeleteFolder removes a folder and every plan in it, returning how many
// plans went with it. Plans with an operation in flight block the delete.
func (s *Service) DeleteFolder(ctx context.Context, id string) (int, error) {
	plans, err := s.store.ListPlans(ctx, types.PlanFilter{FolderID: &id})
	if err != nil {
		return 0, err
	}
	for _, p := range plans {
		if busy := s.guard.Busy(p.ID); len(busy) > 0 {
			return 0, fmt.Errorf("folder %s: plan %s has %s in flight: %w", id, p.ID, busy[0], ErrPrecondition)
		}
	}
	n, err := s.store.DeleteFolder(ctx, id)
	if err != nil {
		return 0, err
	}
	for _, p := range plans {
		if s.overlay != nil {
			s.overlay.ClearOverlay(p.ID)
		}
	}
	s.log.Info("folder deleted", "folder_id", id, "plans", n)
	return n, nil
}

// ListFolders returns all folders ordered by name.
func (s *Service) ListFolders(ctx context.Context) ([]*types.Folder, error) {
	return s.store.ListFolders(ctx)
}

// ListPlans returns the plans matching filter.
func (s *Service) ListPlans(ctx context.Context, filter types.PlanFilter) ([]*types.FlightPlan, error) {
	return s.store.ListPlans(ctx, filter)
}
