package cost_item

import (
	"context"
	"sort"
	"time"
)

type StubRepo struct {
	data       map[int]CostItem
	projectIds map[int]bool
	nextID     int
}

func NewStubRepo() *StubRepo {
	return &StubRepo{
		data:       map[int]CostItem{},
		projectIds: map[int]bool{1: true},
	}
}

func (s *StubRepo) AddProject(projectID int) {
	s.projectIds[projectID] = true
}

func (s *StubRepo) Store(ctx context.Context, item CostItem) (int, error) {
	s.nextID++
	item.ID = s.nextID
	s.data[item.ID] = item
	return item.ID, nil
}

func (s *StubRepo) Get(ctx context.Context, id int) (CostItem, error) {
	item, ok := s.data[id]
	if !ok || item.IsDeleted {
		return CostItem{}, ErrCostItemNotFound
	}
	return item, nil
}

func (s *StubRepo) Update(ctx context.Context, item CostItem) (bool, error) {
	current, ok := s.data[item.ID]
	if !ok || current.IsDeleted {
		return false, nil
	}
	item.Uid = current.Uid
	item.ProjectID = current.ProjectID
	item.CreatedBy = current.CreatedBy
	item.CreatedAt = current.CreatedAt
	item.UpdatedAt = time.Now()
	s.data[item.ID] = item
	return true, nil
}

func (s *StubRepo) List(ctx context.Context, projectID int, controlAccountID *int) ([]CostItem, error) {
	var items []CostItem
	for _, item := range s.data {
		if item.ProjectID != projectID || item.IsDeleted {
			continue
		}
		if controlAccountID != nil && (item.ControlAccountID == nil || *item.ControlAccountID != *controlAccountID) {
			continue
		}
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *StubRepo) ProjectExists(ctx context.Context, projectID int) (bool, error) {
	return s.projectIds[projectID], nil
}

func (s *StubRepo) Delete(ctx context.Context, id int) (bool, error) {
	item, ok := s.data[id]
	if !ok || item.IsDeleted || item.ActualCost.IsPositive() {
		return false, nil
	}
	item.IsDeleted = true
	s.data[id] = item
	return true, nil
}

func (s *StubRepo) Cleanup() {
	s.data = map[int]CostItem{}
	s.projectIds = map[int]bool{1: true}
	s.nextID = 0
}
