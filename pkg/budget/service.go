package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/user"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidStatusTransition = errors.New("invalid budget status transition")
var ErrBudgetNotEditable = errors.New("only draft budgets can be updated")
var ErrBudgetLocked = errors.New("budget is locked")
var ErrNoBudgetItems = errors.New("budget has no items")
var ErrItemTotalMismatch = errors.New("item total outside budget tolerance")
var ErrInvalidCostType = errors.New("invalid cost type")
var ErrProjectNotFound = errors.New("project not found")

type Service interface {
	Create(ctx context.Context, b Budget) (Budget, error)
	Get(ctx context.Context, id int) (Budget, error)
	ListByProject(ctx context.Context, projectID int) ([]Budget, error)
	Update(ctx context.Context, b Budget) (Budget, error)
	Delete(ctx context.Context, id int) (bool, error)
	AddItem(ctx context.Context, item BudgetItem) (BudgetItem, error)
	UpdateItem(ctx context.Context, item BudgetItem) (BudgetItem, error)
	RemoveItem(ctx context.Context, budgetID, itemID int) (bool, error)
	Submit(ctx context.Context, id int) (Budget, error)
	Approve(ctx context.Context, id int, comments string) (Budget, error)
	Reject(ctx context.Context, id int, reason string) (Budget, error)
	SetAsBaseline(ctx context.Context, id int) (Budget, error)
	Lock(ctx context.Context, id int) (Budget, error)
	Revise(ctx context.Context, id int, reason string) (Budget, error)
}

type ServiceImpl struct {
	repo     Repo
	eventBus *event_bus.EventBus
	clock    utils.Clock
}

func NewService(repo Repo, eventBus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, eventBus: eventBus, clock: clock}
}

func (s *ServiceImpl) Create(ctx context.Context, b Budget) (Budget, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return Budget{}, fmt.Errorf("failed to get current user: %w", err)
	}
	exists, err := s.repo.ProjectExists(ctx, b.ProjectID)
	if err != nil {
		return Budget{}, err
	}
	if !exists {
		return Budget{}, fmt.Errorf("%w: %d", ErrProjectNotFound, b.ProjectID)
	}

	b.Uid = uuid.NewString()
	b.Status = StatusDraft
	b.IsBaseline = false
	b.IsLocked = false
	b.CreatedBy = actor
	b.CreatedAt = s.clock.Now()

	id, err := s.repo.Store(ctx, b)
	if err != nil {
		return Budget{}, err
	}
	b.ID = id
	return b, nil
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (Budget, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) ListByProject(ctx context.Context, projectID int) ([]Budget, error) {
	return s.repo.ListByProject(ctx, projectID)
}

func (s *ServiceImpl) Update(ctx context.Context, b Budget) (Budget, error) {
	current, err := s.repo.Get(ctx, b.ID)
	if err != nil {
		return Budget{}, err
	}
	if err := editable(current); err != nil {
		return Budget{}, err
	}
	updated, err := s.repo.Update(ctx, b)
	if err != nil {
		return Budget{}, err
	}
	if !updated {
		// the draft guard in the repo lost against a concurrent submit
		return Budget{}, ErrBudgetNotEditable
	}
	return s.repo.Get(ctx, b.ID)
}

func (s *ServiceImpl) Delete(ctx context.Context, id int) (bool, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if err := editable(current); err != nil {
		return false, err
	}
	return s.repo.Delete(ctx, id)
}

func (s *ServiceImpl) AddItem(ctx context.Context, item BudgetItem) (BudgetItem, error) {
	b, err := s.repo.Get(ctx, item.BudgetID)
	if err != nil {
		return BudgetItem{}, err
	}
	if err := editable(b); err != nil {
		return BudgetItem{}, err
	}
	if !item.CostType.IsValid() {
		return BudgetItem{}, fmt.Errorf("%w: %q", ErrInvalidCostType, item.CostType)
	}
	item.Amount = item.Quantity.Mul(item.UnitRate)

	id, err := s.repo.StoreItem(ctx, item)
	if err != nil {
		return BudgetItem{}, err
	}
	item.ID = id
	return item, nil
}

func (s *ServiceImpl) UpdateItem(ctx context.Context, item BudgetItem) (BudgetItem, error) {
	b, err := s.repo.Get(ctx, item.BudgetID)
	if err != nil {
		return BudgetItem{}, err
	}
	if err := editable(b); err != nil {
		return BudgetItem{}, err
	}
	if !item.CostType.IsValid() {
		return BudgetItem{}, fmt.Errorf("%w: %q", ErrInvalidCostType, item.CostType)
	}
	item.Amount = item.Quantity.Mul(item.UnitRate)

	updated, err := s.repo.UpdateItem(ctx, item)
	if err != nil {
		return BudgetItem{}, err
	}
	if !updated {
		return BudgetItem{}, ErrItemNotFound
	}
	return item, nil
}

func (s *ServiceImpl) RemoveItem(ctx context.Context, budgetID, itemID int) (bool, error) {
	b, err := s.repo.Get(ctx, budgetID)
	if err != nil {
		return false, err
	}
	if err := editable(b); err != nil {
		return false, err
	}
	removed, err := s.repo.RemoveItem(ctx, itemID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, ErrItemNotFound
	}
	return true, nil
}

// Submit moves a draft to pending approval after checking that the items
// account for the distributable budget within the tolerance.
func (s *ServiceImpl) Submit(ctx context.Context, id int) (Budget, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return Budget{}, err
	}
	if !b.Status.CanTransition(StatusPendingApproval) {
		return Budget{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, b.Status, StatusPendingApproval)
	}

	// the coverage check and the status flip run in one repository
	// transaction, against the items as stored there, not against the
	// snapshot read above
	if err := s.repo.Submit(ctx, id); err != nil {
		return Budget{}, err
	}
	b, err = s.repo.Get(ctx, id)
	if err != nil {
		return Budget{}, err
	}
	s.publishStatusChange(ctx, "budget.submitted", b, StatusDraft)
	return b, nil
}

func (s *ServiceImpl) Approve(ctx context.Context, id int, comments string) (Budget, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return Budget{}, fmt.Errorf("failed to get current user: %w", err)
	}
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return Budget{}, err
	}
	if !b.Status.CanTransition(StatusApproved) {
		return Budget{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, b.Status, StatusApproved)
	}
	approved, err := s.repo.Approve(ctx, id, actor, comments, s.clock.Now())
	if err != nil {
		return Budget{}, err
	}
	if !approved {
		return Budget{}, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	b, err = s.repo.Get(ctx, id)
	if err != nil {
		return Budget{}, err
	}
	s.publishStatusChange(ctx, "budget.approved", b, StatusPendingApproval)
	return b, nil
}

func (s *ServiceImpl) Reject(ctx context.Context, id int, reason string) (Budget, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return Budget{}, fmt.Errorf("failed to get current user: %w", err)
	}
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return Budget{}, err
	}
	if !b.Status.CanTransition(StatusRejected) {
		return Budget{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, b.Status, StatusRejected)
	}
	rejected, err := s.repo.Reject(ctx, id, actor, reason, s.clock.Now())
	if err != nil {
		return Budget{}, err
	}
	if !rejected {
		return Budget{}, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	b, err = s.repo.Get(ctx, id)
	if err != nil {
		return Budget{}, err
	}
	s.publishStatusChange(ctx, "budget.rejected", b, StatusPendingApproval)
	return b, nil
}

func (s *ServiceImpl) SetAsBaseline(ctx context.Context, id int) (Budget, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return Budget{}, err
	}
	if !b.Status.CanTransition(StatusBaseline) {
		return Budget{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, b.Status, StatusBaseline)
	}
	promoted, err := s.repo.SetAsBaseline(ctx, id, b.ProjectID)
	if err != nil {
		return Budget{}, err
	}
	if !promoted {
		return Budget{}, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	b.Status = StatusBaseline
	b.IsBaseline = true
	s.publishStatusChange(ctx, "budget.baselined", b, StatusApproved)
	return b, nil
}

func (s *ServiceImpl) Lock(ctx context.Context, id int) (Budget, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return Budget{}, err
	}
	if !b.Status.CanTransition(StatusLocked) {
		return Budget{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, b.Status, StatusLocked)
	}
	locked, err := s.repo.Lock(ctx, id)
	if err != nil {
		return Budget{}, err
	}
	if !locked {
		return Budget{}, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	from := b.Status
	b.Status = StatusLocked
	b.IsLocked = true
	s.publishStatusChange(ctx, "budget.locked", b, from)
	return b, nil
}

// Revise spawns a new draft budget seeded from an approved or baselined one.
// The source keeps its status and gains a revision row for audit.
func (s *ServiceImpl) Revise(ctx context.Context, id int, reason string) (Budget, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return Budget{}, fmt.Errorf("failed to get current user: %w", err)
	}
	source, err := s.repo.Get(ctx, id)
	if err != nil {
		return Budget{}, err
	}
	if source.Status != StatusApproved && source.Status != StatusBaseline {
		return Budget{}, fmt.Errorf("%w: only approved or baselined budgets can be revised (status %s)", ErrInvalidStatusTransition, source.Status)
	}

	number := len(source.Revisions) + 1
	draft := Budget{
		Uid:               uuid.NewString(),
		ProjectID:         source.ProjectID,
		Version:           fmt.Sprintf("%s-R%d", source.Version, number),
		Description:       source.Description,
		TotalAmount:       source.TotalAmount,
		Currency:          source.Currency,
		ContingencyAmount: source.ContingencyAmount,
		ManagementReserve: source.ManagementReserve,
		Status:            StatusDraft,
		CreatedBy:         actor,
		CreatedAt:         s.clock.Now(),
	}
	revision := BudgetRevision{
		BudgetID:  source.ID,
		Number:    number,
		Reason:    reason,
		CreatedBy: actor,
		CreatedAt: s.clock.Now(),
	}

	draft, err = s.repo.CreateRevision(ctx, source.ID, revision, draft)
	if err != nil {
		return Budget{}, err
	}

	err = s.eventBus.Publish(event_bus.NewEvent(ctx, "budget.revised", event_bus.BudgetRevisionCreated{
		SourceBudgetID: source.ID,
		NewBudgetID:    draft.ID,
		ProjectID:      source.ProjectID,
		RevisionNumber: number,
		Reason:         reason,
		Actor:          actor,
	}))
	if err != nil {
		log.Errorf("failed to publish budget revision event: %v", err)
	}
	return draft, nil
}

// editable reports whether item and header mutation is allowed.
func editable(b Budget) error {
	if b.IsLocked || b.Status == StatusLocked {
		return ErrBudgetLocked
	}
	if b.Status != StatusDraft {
		return fmt.Errorf("%w (status %s)", ErrBudgetNotEditable, b.Status)
	}
	return nil
}

// publishStatusChange notifies subscribers after the transition is committed.
// A failed publish is logged, not returned, the state change already happened.
func (s *ServiceImpl) publishStatusChange(ctx context.Context, eventType event_bus.EventType, b Budget, from Status) {
	actor, _ := user.CurrentActor(ctx)
	err := s.eventBus.Publish(event_bus.NewEvent(ctx, eventType, event_bus.BudgetStatusChanged{
		BudgetID:  b.ID,
		ProjectID: b.ProjectID,
		Version:   b.Version,
		From:      string(from),
		To:        string(b.Status),
		Actor:     actor,
	}))
	if err != nil {
		log.Errorf("failed to publish %s event: %v", eventType, err)
	}
}
