package commitment

import (
	"context"
	"errors"
	"fmt"

	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/user"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidStatusTransition = errors.New("invalid commitment status transition")
var ErrCommitmentNotEditable = errors.New("only draft commitments can be updated")
var ErrCommitmentHasInvoices = errors.New("cannot delete a commitment with invoices")
var ErrReviseBelowInvoiced = errors.New("newAmount must be >= invoicedAmount")
var ErrOverAllocation = errors.New("allocations exceed the committed amount")
var ErrInvalidAmount = errors.New("amount must be positive")
var ErrPaymentExceedsInvoiced = errors.New("payment exceeds the invoiced amount")

type Service interface {
	Create(ctx context.Context, c Commitment) (Commitment, error)
	Get(ctx context.Context, id int) (Commitment, error)
	ListByProject(ctx context.Context, projectID int) ([]Commitment, error)
	Update(ctx context.Context, c Commitment) (Commitment, error)
	Delete(ctx context.Context, id int) (bool, error)
	Submit(ctx context.Context, id int) (Commitment, error)
	Approve(ctx context.Context, id int, notes string) (Commitment, error)
	Reject(ctx context.Context, id int, reason string) (Commitment, error)
	Activate(ctx context.Context, id int) (Commitment, error)
	Cancel(ctx context.Context, id int) (Commitment, error)
	Close(ctx context.Context, id int) (Commitment, error)
	RecordInvoice(ctx context.Context, id int, amount decimal.Decimal) (Commitment, error)
	RecordPayment(ctx context.Context, id int, amount decimal.Decimal) (Commitment, error)
	Revise(ctx context.Context, id int, newAmount decimal.Decimal, reason, changeOrderRef string) (Commitment, error)
	AddItem(ctx context.Context, item CommitmentItem) (CommitmentItem, error)
	Allocate(ctx context.Context, alloc WorkPackageAllocation) (WorkPackageAllocation, error)
}

type ServiceImpl struct {
	repo     Repo
	eventBus *event_bus.EventBus
	clock    utils.Clock
}

func NewService(repo Repo, eventBus *event_bus.EventBus, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, eventBus: eventBus, clock: clock}
}

func (s *ServiceImpl) Create(ctx context.Context, c Commitment) (Commitment, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return Commitment{}, fmt.Errorf("failed to get current user: %w", err)
	}
	exists, err := s.repo.ProjectExists(ctx, c.ProjectID)
	if err != nil {
		return Commitment{}, err
	}
	if !exists {
		return Commitment{}, fmt.Errorf("%w: %d", ErrProjectNotFound, c.ProjectID)
	}
	if !c.OriginalAmount.IsPositive() {
		return Commitment{}, fmt.Errorf("%w: original amount %s", ErrInvalidAmount, c.OriginalAmount)
	}

	c.Uid = uuid.NewString()
	c.Status = StatusDraft
	c.RevisedAmount = c.OriginalAmount
	c.CommittedAmount = c.OriginalAmount
	c.CreatedBy = actor
	c.CreatedAt = s.clock.Now()

	id, err := s.repo.Store(ctx, c)
	if err != nil {
		return Commitment{}, err
	}
	c.ID = id
	return c, nil
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (Commitment, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) ListByProject(ctx context.Context, projectID int) ([]Commitment, error) {
	return s.repo.ListByProject(ctx, projectID)
}

func (s *ServiceImpl) Update(ctx context.Context, c Commitment) (Commitment, error) {
	current, err := s.repo.Get(ctx, c.ID)
	if err != nil {
		return Commitment{}, err
	}
	if current.Status != StatusDraft && current.Status != StatusActive && current.Status != StatusPartiallyInvoiced {
		return Commitment{}, fmt.Errorf("%w (status %s)", ErrCommitmentNotEditable, current.Status)
	}
	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		return Commitment{}, err
	}
	if !updated {
		return Commitment{}, ErrCommitmentNotFound
	}
	return s.repo.Get(ctx, c.ID)
}

// Delete soft-deletes a draft that has never been invoiced.
func (s *ServiceImpl) Delete(ctx context.Context, id int) (bool, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if c.InvoicedAmount.IsPositive() {
		return false, ErrCommitmentHasInvoices
	}
	if c.Status != StatusDraft {
		return false, fmt.Errorf("%w (status %s)", ErrCommitmentNotEditable, c.Status)
	}
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	return true, nil
}

func (s *ServiceImpl) Submit(ctx context.Context, id int) (Commitment, error) {
	return s.transition(ctx, id, StatusPendingApproval, "")
}

func (s *ServiceImpl) Approve(ctx context.Context, id int, notes string) (Commitment, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return Commitment{}, fmt.Errorf("failed to get current user: %w", err)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Commitment{}, err
	}
	if !c.Status.CanTransition(StatusApproved) {
		return Commitment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, c.Status, StatusApproved)
	}
	approved, err := s.repo.Approve(ctx, id, actor, notes, s.clock.Now())
	if err != nil {
		return Commitment{}, err
	}
	if !approved {
		return Commitment{}, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	c, err = s.repo.Get(ctx, id)
	if err != nil {
		return Commitment{}, err
	}
	s.publishStatusChange(ctx, "commitment.approved", c, StatusPendingApproval)
	return c, nil
}

func (s *ServiceImpl) Reject(ctx context.Context, id int, reason string) (Commitment, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return Commitment{}, fmt.Errorf("failed to get current user: %w", err)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Commitment{}, err
	}
	if !c.Status.CanTransition(StatusRejected) {
		return Commitment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, c.Status, StatusRejected)
	}
	rejected, err := s.repo.Reject(ctx, id, actor, reason, s.clock.Now())
	if err != nil {
		return Commitment{}, err
	}
	if !rejected {
		return Commitment{}, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) Activate(ctx context.Context, id int) (Commitment, error) {
	return s.transition(ctx, id, StatusActive, "commitment.activated")
}

func (s *ServiceImpl) Cancel(ctx context.Context, id int) (Commitment, error) {
	return s.transition(ctx, id, StatusCancelled, "")
}

func (s *ServiceImpl) Close(ctx context.Context, id int) (Commitment, error) {
	return s.transition(ctx, id, StatusClosed, "commitment.closed")
}

func (s *ServiceImpl) transition(ctx context.Context, id int, target Status, eventType event_bus.EventType) (Commitment, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Commitment{}, err
	}
	if !c.Status.CanTransition(target) {
		return Commitment{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, c.Status, target)
	}
	moved, err := s.repo.UpdateStatus(ctx, id, c.Status, target)
	if err != nil {
		return Commitment{}, err
	}
	if !moved {
		return Commitment{}, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	from := c.Status
	c.Status = target
	if eventType != "" {
		s.publishStatusChange(ctx, eventType, c, from)
	}
	return c, nil
}

// RecordInvoice books an invoice against an active commitment. The first
// invoice flips Active to PartiallyInvoiced, closing stays an explicit call.
func (s *ServiceImpl) RecordInvoice(ctx context.Context, id int, amount decimal.Decimal) (Commitment, error) {
	if !amount.IsPositive() {
		return Commitment{}, fmt.Errorf("%w: invoice %s", ErrInvalidAmount, amount)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Commitment{}, err
	}
	if c.Status != StatusActive && c.Status != StatusPartiallyInvoiced {
		return Commitment{}, fmt.Errorf("%w: cannot invoice in status %s", ErrInvalidStatusTransition, c.Status)
	}
	recorded, err := s.repo.RecordInvoice(ctx, id, amount, StatusPartiallyInvoiced)
	if err != nil {
		return Commitment{}, err
	}
	if !recorded {
		return Commitment{}, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) RecordPayment(ctx context.Context, id int, amount decimal.Decimal) (Commitment, error) {
	if !amount.IsPositive() {
		return Commitment{}, fmt.Errorf("%w: payment %s", ErrInvalidAmount, amount)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Commitment{}, err
	}
	recorded, err := s.repo.RecordPayment(ctx, id, amount)
	if err != nil {
		return Commitment{}, err
	}
	if !recorded {
		return Commitment{}, fmt.Errorf("%w: paid %s + %s would exceed invoiced %s",
			ErrPaymentExceedsInvoiced, c.PaidAmount, amount, c.InvoicedAmount)
	}
	return s.repo.Get(ctx, id)
}

// Revise changes the committed amount of a running commitment. The new amount
// can never drop below what has already been invoiced.
func (s *ServiceImpl) Revise(ctx context.Context, id int, newAmount decimal.Decimal, reason, changeOrderRef string) (Commitment, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return Commitment{}, fmt.Errorf("failed to get current user: %w", err)
	}
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Commitment{}, err
	}
	if c.Status != StatusActive && c.Status != StatusPartiallyInvoiced {
		return Commitment{}, fmt.Errorf("%w: cannot revise in status %s", ErrInvalidStatusTransition, c.Status)
	}
	if newAmount.LessThan(c.InvoicedAmount) {
		return Commitment{}, fmt.Errorf("%w: %s < %s", ErrReviseBelowInvoiced, newAmount, c.InvoicedAmount)
	}

	number := len(c.Revisions) + 1
	revision := CommitmentRevision{
		CommitmentID:   id,
		Number:         number,
		PreviousAmount: c.CommittedAmount,
		NewAmount:      newAmount,
		Reason:         reason,
		ChangeOrderRef: changeOrderRef,
		CreatedBy:      actor,
		CreatedAt:      s.clock.Now(),
	}
	revised, err := s.repo.CreateRevision(ctx, id, revision)
	if err != nil {
		return Commitment{}, err
	}
	if !revised {
		return Commitment{}, fmt.Errorf("%w: status or invoiced amount changed concurrently", ErrInvalidStatusTransition)
	}

	err = s.eventBus.Publish(event_bus.NewEvent(ctx, "commitment.revised", event_bus.CommitmentRevisionCreated{
		CommitmentID:   id,
		ProjectID:      c.ProjectID,
		RevisionNumber: number,
		NewAmount:      newAmount,
		Reason:         reason,
		Actor:          actor,
	}))
	if err != nil {
		log.Errorf("failed to publish commitment revision event: %v", err)
	}
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) AddItem(ctx context.Context, item CommitmentItem) (CommitmentItem, error) {
	c, err := s.repo.Get(ctx, item.CommitmentID)
	if err != nil {
		return CommitmentItem{}, err
	}
	if c.Status != StatusDraft {
		return CommitmentItem{}, fmt.Errorf("%w (status %s)", ErrCommitmentNotEditable, c.Status)
	}
	item.Amount = item.Quantity.Mul(item.UnitRate)
	id, err := s.repo.StoreItem(ctx, item)
	if err != nil {
		return CommitmentItem{}, err
	}
	item.ID = id
	return item, nil
}

// Allocate spreads part of the commitment over a work package. The sum of all
// allocations may never exceed the committed amount.
func (s *ServiceImpl) Allocate(ctx context.Context, alloc WorkPackageAllocation) (WorkPackageAllocation, error) {
	if !alloc.AllocatedAmount.IsPositive() {
		return WorkPackageAllocation{}, fmt.Errorf("%w: allocation %s", ErrInvalidAmount, alloc.AllocatedAmount)
	}
	c, err := s.repo.Get(ctx, alloc.CommitmentID)
	if err != nil {
		return WorkPackageAllocation{}, err
	}
	allocated := c.AllocatedTotal().Add(alloc.AllocatedAmount)
	if allocated.GreaterThan(c.CommittedAmount) {
		return WorkPackageAllocation{}, fmt.Errorf("%w: %s > %s", ErrOverAllocation, allocated, c.CommittedAmount)
	}
	id, err := s.repo.StoreAllocation(ctx, alloc)
	if err != nil {
		return WorkPackageAllocation{}, err
	}
	alloc.ID = id
	return alloc, nil
}

func (s *ServiceImpl) publishStatusChange(ctx context.Context, eventType event_bus.EventType, c Commitment, from Status) {
	actor, _ := user.CurrentActor(ctx)
	err := s.eventBus.Publish(event_bus.NewEvent(ctx, eventType, event_bus.CommitmentStatusChanged{
		CommitmentID: c.ID,
		ProjectID:    c.ProjectID,
		Reference:    c.CommitmentNumber,
		From:         string(from),
		To:           string(c.Status),
		Actor:        actor,
	}))
	if err != nil {
		log.Errorf("failed to publish %s event: %v", eventType, err)
	}
}
