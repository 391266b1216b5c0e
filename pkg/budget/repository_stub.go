package budget

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// StubRepo is an in-memory Repo used in tests. It enforces the same
// uniqueness and status guards as the database schema.
type StubRepo struct {
	budgets    map[int]Budget
	items      map[int]BudgetItem
	revisions  []BudgetRevision
	projectIds map[int]bool
	nextID     int
	nextItemID int
}

func NewStubRepo() *StubRepo {
	return &StubRepo{
		budgets:    map[int]Budget{},
		items:      map[int]BudgetItem{},
		projectIds: map[int]bool{1: true},
	}
}

func (s *StubRepo) AddProject(projectID int) {
	s.projectIds[projectID] = true
}

func (s *StubRepo) Store(ctx context.Context, b Budget) (int, error) {
	for _, existing := range s.budgets {
		if !existing.IsDeleted && existing.ProjectID == b.ProjectID && existing.Version == b.Version {
			return 0, ErrDuplicateVersion
		}
	}
	s.nextID++
	b.ID = s.nextID
	b.Items = nil
	b.Revisions = nil
	s.budgets[b.ID] = b
	return b.ID, nil
}

func (s *StubRepo) Get(ctx context.Context, id int) (Budget, error) {
	b, ok := s.budgets[id]
	if !ok || b.IsDeleted {
		return Budget{}, ErrBudgetNotFound
	}
	b.Items = s.itemsOf(id)
	for _, rev := range s.revisions {
		if rev.BudgetID == id {
			b.Revisions = append(b.Revisions, rev)
		}
	}
	return b, nil
}

func (s *StubRepo) Update(ctx context.Context, b Budget) (bool, error) {
	current, ok := s.budgets[b.ID]
	if !ok || current.IsDeleted || current.Status != StatusDraft {
		return false, nil
	}
	current.Version = b.Version
	current.Description = b.Description
	current.TotalAmount = b.TotalAmount
	current.Currency = b.Currency
	current.ContingencyAmount = b.ContingencyAmount
	current.ManagementReserve = b.ManagementReserve
	current.UpdatedAt = time.Now()
	s.budgets[b.ID] = current
	return true, nil
}

func (s *StubRepo) UpdateStatus(ctx context.Context, id int, from, to Status) (bool, error) {
	b, ok := s.budgets[id]
	if !ok || b.IsDeleted || b.Status != from {
		return false, nil
	}
	b.Status = to
	s.budgets[id] = b
	return true, nil
}

// Submit mirrors the single-transaction submit of the database repository:
// the coverage check runs against the items as stored at this moment, not
// against a snapshot the caller read earlier.
func (s *StubRepo) Submit(ctx context.Context, id int) error {
	b, ok := s.budgets[id]
	if !ok || b.IsDeleted {
		return ErrBudgetNotFound
	}
	b.Items = s.itemsOf(id)
	if err := checkItemCoverage(len(b.Items), b.ItemTotal(), b.DistributableAmount()); err != nil {
		return err
	}
	if b.Status != StatusDraft {
		return fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	b.Items = nil
	b.Status = StatusPendingApproval
	s.budgets[id] = b
	return nil
}

func (s *StubRepo) Approve(ctx context.Context, id int, approver, comments string, at time.Time) (bool, error) {
	b, ok := s.budgets[id]
	if !ok || b.IsDeleted || b.Status != StatusPendingApproval {
		return false, nil
	}
	b.Status = StatusApproved
	b.ApprovedBy = &approver
	b.ApprovedAt = &at
	b.ApprovalComments = comments
	s.budgets[id] = b
	return true, nil
}

func (s *StubRepo) Reject(ctx context.Context, id int, approver, reason string, at time.Time) (bool, error) {
	b, ok := s.budgets[id]
	if !ok || b.IsDeleted || b.Status != StatusPendingApproval {
		return false, nil
	}
	b.Status = StatusRejected
	b.RejectedBy = &approver
	b.RejectedAt = &at
	b.RejectionReason = reason
	s.budgets[id] = b
	return true, nil
}

func (s *StubRepo) SetAsBaseline(ctx context.Context, id, projectID int) (bool, error) {
	target, ok := s.budgets[id]
	if !ok || target.IsDeleted || target.Status != StatusApproved {
		return false, nil
	}
	for otherID, other := range s.budgets {
		if otherID != id && other.ProjectID == projectID && other.IsBaseline {
			other.IsBaseline = false
			s.budgets[otherID] = other
		}
	}
	target.Status = StatusBaseline
	target.IsBaseline = true
	s.budgets[id] = target
	return true, nil
}

func (s *StubRepo) Lock(ctx context.Context, id int) (bool, error) {
	b, ok := s.budgets[id]
	if !ok || b.IsDeleted || (b.Status != StatusApproved && b.Status != StatusBaseline) {
		return false, nil
	}
	b.Status = StatusLocked
	b.IsLocked = true
	s.budgets[id] = b
	return true, nil
}

func (s *StubRepo) CreateRevision(ctx context.Context, sourceID int, revision BudgetRevision, draft Budget) (Budget, error) {
	id, err := s.Store(ctx, draft)
	if err != nil {
		return Budget{}, err
	}
	draft.ID = id
	for _, item := range s.itemsOf(sourceID) {
		item.BudgetID = draft.ID
		copied := item
		copied.ID = 0
		if _, err := s.StoreItem(ctx, copied); err != nil {
			return Budget{}, err
		}
	}
	revision.NewBudgetID = draft.ID
	s.revisions = append(s.revisions, revision)
	draft.Items = s.itemsOf(draft.ID)
	return draft, nil
}

func (s *StubRepo) ListByProject(ctx context.Context, projectID int) ([]Budget, error) {
	var budgets []Budget
	for _, b := range s.budgets {
		if b.ProjectID == projectID && !b.IsDeleted {
			budgets = append(budgets, b)
		}
	}
	sort.Slice(budgets, func(i, j int) bool { return budgets[i].ID < budgets[j].ID })
	return budgets, nil
}

func (s *StubRepo) ProjectExists(ctx context.Context, projectID int) (bool, error) {
	return s.projectIds[projectID], nil
}

func (s *StubRepo) StoreItem(ctx context.Context, item BudgetItem) (int, error) {
	b, ok := s.budgets[item.BudgetID]
	if !ok || b.IsDeleted || b.Status != StatusDraft {
		return 0, ErrBudgetNotEditable
	}
	for _, existing := range s.items {
		if !existing.IsDeleted && existing.BudgetID == item.BudgetID && existing.Code == item.Code {
			return 0, fmt.Errorf("%w: %s", ErrDuplicateItemCode, item.Code)
		}
	}
	s.nextItemID++
	item.ID = s.nextItemID
	s.items[item.ID] = item
	return item.ID, nil
}

func (s *StubRepo) UpdateItem(ctx context.Context, item BudgetItem) (bool, error) {
	current, ok := s.items[item.ID]
	if !ok || current.IsDeleted {
		return false, nil
	}
	if b, ok := s.budgets[current.BudgetID]; !ok || b.IsDeleted || b.Status != StatusDraft {
		return false, nil
	}
	for _, existing := range s.items {
		if existing.ID != item.ID && !existing.IsDeleted && existing.BudgetID == item.BudgetID && existing.Code == item.Code {
			return false, fmt.Errorf("%w: %s", ErrDuplicateItemCode, item.Code)
		}
	}
	item.BudgetID = current.BudgetID
	s.items[item.ID] = item
	return true, nil
}

func (s *StubRepo) RemoveItem(ctx context.Context, itemID int) (bool, error) {
	item, ok := s.items[itemID]
	if !ok || item.IsDeleted {
		return false, nil
	}
	if b, ok := s.budgets[item.BudgetID]; !ok || b.IsDeleted || b.Status != StatusDraft {
		return false, nil
	}
	item.IsDeleted = true
	s.items[itemID] = item
	return true, nil
}

func (s *StubRepo) Delete(ctx context.Context, id int) (bool, error) {
	b, ok := s.budgets[id]
	if !ok || b.IsDeleted || b.Status != StatusDraft {
		return false, nil
	}
	b.IsDeleted = true
	s.budgets[id] = b
	return true, nil
}

func (s *StubRepo) itemsOf(budgetID int) []BudgetItem {
	var items []BudgetItem
	for _, item := range s.items {
		if item.BudgetID == budgetID && !item.IsDeleted {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Code < items[j].Code })
	return items
}

func (s *StubRepo) Cleanup() {
	s.budgets = map[int]Budget{}
	s.items = map[int]BudgetItem{}
	s.revisions = nil
	s.projectIds = map[int]bool{1: true}
	s.nextID = 0
	s.nextItemID = 0
}
