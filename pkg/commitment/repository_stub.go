package commitment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// StubRepo is an in-memory Repo used in tests. It mirrors the status and
// amount guards of the database statements.
type StubRepo struct {
	commitments map[int]Commitment
	items       map[int]CommitmentItem
	allocations map[int]WorkPackageAllocation
	revisions   []CommitmentRevision
	projectIds  map[int]bool
	nextID      int
	nextChildID int
}

func NewStubRepo() *StubRepo {
	return &StubRepo{
		commitments: map[int]Commitment{},
		items:       map[int]CommitmentItem{},
		allocations: map[int]WorkPackageAllocation{},
		projectIds:  map[int]bool{1: true},
	}
}

func (s *StubRepo) AddProject(projectID int) {
	s.projectIds[projectID] = true
}

func (s *StubRepo) Store(ctx context.Context, c Commitment) (int, error) {
	s.nextID++
	c.ID = s.nextID
	c.Items = nil
	c.Allocations = nil
	c.Revisions = nil
	s.commitments[c.ID] = c
	return c.ID, nil
}

func (s *StubRepo) Get(ctx context.Context, id int) (Commitment, error) {
	c, ok := s.commitments[id]
	if !ok || c.IsDeleted {
		return Commitment{}, ErrCommitmentNotFound
	}
	for _, item := range s.items {
		if item.CommitmentID == id {
			c.Items = append(c.Items, item)
		}
	}
	for _, alloc := range s.allocations {
		if alloc.CommitmentID == id {
			c.Allocations = append(c.Allocations, alloc)
		}
	}
	sort.Slice(c.Allocations, func(i, j int) bool { return c.Allocations[i].ID < c.Allocations[j].ID })
	for _, rev := range s.revisions {
		if rev.CommitmentID == id {
			c.Revisions = append(c.Revisions, rev)
		}
	}
	return c, nil
}

func (s *StubRepo) Update(ctx context.Context, c Commitment) (bool, error) {
	current, ok := s.commitments[c.ID]
	if !ok || current.IsDeleted {
		return false, nil
	}
	current.ContractorRef = c.ContractorRef
	current.BudgetItemID = c.BudgetItemID
	current.ControlAccountID = c.ControlAccountID
	current.CommitmentNumber = c.CommitmentNumber
	current.Title = c.Title
	current.StartDate = c.StartDate
	current.EndDate = c.EndDate
	current.PerformancePct = c.PerformancePct
	current.UpdatedAt = time.Now()
	s.commitments[c.ID] = current
	return true, nil
}

func (s *StubRepo) UpdateStatus(ctx context.Context, id int, from, to Status) (bool, error) {
	c, ok := s.commitments[id]
	if !ok || c.IsDeleted || c.Status != from {
		return false, nil
	}
	c.Status = to
	s.commitments[id] = c
	return true, nil
}

func (s *StubRepo) Approve(ctx context.Context, id int, approver, notes string, at time.Time) (bool, error) {
	c, ok := s.commitments[id]
	if !ok || c.IsDeleted || c.Status != StatusPendingApproval {
		return false, nil
	}
	c.Status = StatusApproved
	c.ApprovedBy = &approver
	c.ApprovedAt = &at
	c.ApprovalNotes = notes
	s.commitments[id] = c
	return true, nil
}

func (s *StubRepo) Reject(ctx context.Context, id int, approver, reason string, at time.Time) (bool, error) {
	c, ok := s.commitments[id]
	if !ok || c.IsDeleted || c.Status != StatusPendingApproval {
		return false, nil
	}
	c.Status = StatusRejected
	c.RejectedBy = &approver
	c.RejectedAt = &at
	c.RejectionReason = reason
	s.commitments[id] = c
	return true, nil
}

func (s *StubRepo) RecordInvoice(ctx context.Context, id int, amount decimal.Decimal, to Status) (bool, error) {
	c, ok := s.commitments[id]
	if !ok || c.IsDeleted || (c.Status != StatusActive && c.Status != StatusPartiallyInvoiced) {
		return false, nil
	}
	c.InvoicedAmount = c.InvoicedAmount.Add(amount)
	c.Status = to
	s.commitments[id] = c
	return true, nil
}

func (s *StubRepo) RecordPayment(ctx context.Context, id int, amount decimal.Decimal) (bool, error) {
	c, ok := s.commitments[id]
	if !ok || c.IsDeleted || c.PaidAmount.Add(amount).GreaterThan(c.InvoicedAmount) {
		return false, nil
	}
	c.PaidAmount = c.PaidAmount.Add(amount)
	s.commitments[id] = c
	return true, nil
}

func (s *StubRepo) CreateRevision(ctx context.Context, id int, revision CommitmentRevision) (bool, error) {
	c, ok := s.commitments[id]
	if !ok || c.IsDeleted ||
		(c.Status != StatusActive && c.Status != StatusPartiallyInvoiced) ||
		c.InvoicedAmount.GreaterThan(revision.NewAmount) {
		return false, nil
	}
	c.RevisedAmount = revision.NewAmount
	c.CommittedAmount = revision.NewAmount
	s.commitments[id] = c
	s.revisions = append(s.revisions, revision)
	return true, nil
}

func (s *StubRepo) ListByProject(ctx context.Context, projectID int) ([]Commitment, error) {
	var commitments []Commitment
	for _, c := range s.commitments {
		if c.ProjectID == projectID && !c.IsDeleted {
			commitments = append(commitments, c)
		}
	}
	sort.Slice(commitments, func(i, j int) bool { return commitments[i].ID < commitments[j].ID })
	return commitments, nil
}

func (s *StubRepo) ProjectExists(ctx context.Context, projectID int) (bool, error) {
	return s.projectIds[projectID], nil
}

func (s *StubRepo) StoreItem(ctx context.Context, item CommitmentItem) (int, error) {
	s.nextChildID++
	item.ID = s.nextChildID
	s.items[item.ID] = item
	return item.ID, nil
}

// StoreAllocation enforces the allocation ceiling against the allocations as
// stored right now, mirroring the locked check of the database repository.
func (s *StubRepo) StoreAllocation(ctx context.Context, alloc WorkPackageAllocation) (int, error) {
	c, ok := s.commitments[alloc.CommitmentID]
	if !ok || c.IsDeleted {
		return 0, ErrCommitmentNotFound
	}
	allocated := alloc.AllocatedAmount
	for _, existing := range s.allocations {
		if existing.CommitmentID == alloc.CommitmentID {
			allocated = allocated.Add(existing.AllocatedAmount)
		}
	}
	if allocated.GreaterThan(c.CommittedAmount) {
		return 0, fmt.Errorf("%w: %s > %s", ErrOverAllocation, allocated, c.CommittedAmount)
	}
	s.nextChildID++
	alloc.ID = s.nextChildID
	s.allocations[alloc.ID] = alloc
	return alloc.ID, nil
}

func (s *StubRepo) Delete(ctx context.Context, id int) (bool, error) {
	c, ok := s.commitments[id]
	if !ok || c.IsDeleted || c.Status != StatusDraft || c.InvoicedAmount.IsPositive() {
		return false, nil
	}
	c.IsDeleted = true
	s.commitments[id] = c
	return true, nil
}

func (s *StubRepo) Cleanup() {
	s.commitments = map[int]Commitment{}
	s.items = map[int]CommitmentItem{}
	s.allocations = map[int]WorkPackageAllocation{}
	s.revisions = nil
	s.projectIds = map[int]bool{1: true}
	s.nextID = 0
	s.nextChildID = 0
}
