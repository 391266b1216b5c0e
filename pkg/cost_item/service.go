package cost_item

import (
	"context"
	"errors"
	"fmt"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/user"
	"github.com/google/uuid"
)

var ErrCostItemHasActuals = errors.New("cost items with actual costs cannot be deleted")

type Service interface {
	Create(ctx context.Context, item CostItem) (CostItem, error)
	Get(ctx context.Context, id int) (CostItem, error)
	List(ctx context.Context, projectID int, controlAccountID *int) ([]CostItem, error)
	Update(ctx context.Context, item CostItem) (CostItem, error)
	Delete(ctx context.Context, id int) (bool, error)
	ProjectRollup(ctx context.Context, projectID int) (Rollup, error)
}

type ServiceImpl struct {
	repo  Repo
	clock utils.Clock
}

func NewService(repo Repo, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, clock: clock}
}

func (s *ServiceImpl) Create(ctx context.Context, item CostItem) (CostItem, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return CostItem{}, fmt.Errorf("failed to get current user: %w", err)
	}
	exists, err := s.repo.ProjectExists(ctx, item.ProjectID)
	if err != nil {
		return CostItem{}, err
	}
	if !exists {
		return CostItem{}, fmt.Errorf("%w: %d", ErrProjectNotFound, item.ProjectID)
	}

	item.Uid = uuid.NewString()
	item.CreatedBy = actor
	item.CreatedAt = s.clock.Now()

	id, err := s.repo.Store(ctx, item)
	if err != nil {
		return CostItem{}, err
	}
	item.ID = id
	return item, nil
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (CostItem, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) List(ctx context.Context, projectID int, controlAccountID *int) ([]CostItem, error) {
	return s.repo.List(ctx, projectID, controlAccountID)
}

func (s *ServiceImpl) Update(ctx context.Context, item CostItem) (CostItem, error) {
	if _, err := s.repo.Get(ctx, item.ID); err != nil {
		return CostItem{}, err
	}
	updated, err := s.repo.Update(ctx, item)
	if err != nil {
		return CostItem{}, err
	}
	if !updated {
		return CostItem{}, ErrCostItemNotFound
	}
	return s.repo.Get(ctx, item.ID)
}

// Delete refuses once actual costs are booked against the line.
func (s *ServiceImpl) Delete(ctx context.Context, id int) (bool, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if item.ActualCost.IsPositive() {
		return false, fmt.Errorf("%w: %s booked", ErrCostItemHasActuals, item.ActualCost)
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		// actuals arrived between read and write
		return false, ErrCostItemHasActuals
	}
	return true, nil
}

func (s *ServiceImpl) ProjectRollup(ctx context.Context, projectID int) (Rollup, error) {
	exists, err := s.repo.ProjectExists(ctx, projectID)
	if err != nil {
		return Rollup{}, err
	}
	if !exists {
		return Rollup{}, fmt.Errorf("%w: %d", ErrProjectNotFound, projectID)
	}
	items, err := s.repo.List(ctx, projectID, nil)
	if err != nil {
		return Rollup{}, err
	}
	return Sum(projectID, items), nil
}
