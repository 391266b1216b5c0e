package evm

import (
	"context"
	"sort"
	"time"
)

type StubRepo struct {
	nextId int
	data   map[int]EVMRecord
}

func NewStubRepo() *StubRepo {
	return &StubRepo{data: map[int]EVMRecord{}}
}

func (s *StubRepo) Store(ctx context.Context, rec EVMRecord) (int, error) {
	for _, existing := range s.data {
		if existing.ControlAccountID == rec.ControlAccountID &&
			existing.DataDate.Equal(rec.DataDate) &&
			existing.PeriodType == rec.PeriodType {
			return 0, ErrDuplicateRecord
		}
	}
	s.nextId++
	rec.ID = s.nextId
	s.data[rec.ID] = rec
	return rec.ID, nil
}

func (s *StubRepo) Get(ctx context.Context, id int) (EVMRecord, error) {
	rec, ok := s.data[id]
	if !ok {
		return EVMRecord{}, ErrRecordNotFound
	}
	return rec, nil
}

func (s *StubRepo) Update(ctx context.Context, rec EVMRecord) (bool, error) {
	current, ok := s.data[rec.ID]
	if !ok || current.IsApproved {
		return false, nil
	}
	current.PlannedValue = rec.PlannedValue
	current.EarnedValue = rec.EarnedValue
	current.ActualCost = rec.ActualCost
	current.BudgetAtCompletion = rec.BudgetAtCompletion
	current.Notes = rec.Notes
	s.data[rec.ID] = current
	return true, nil
}

func (s *StubRepo) Approve(ctx context.Context, id int, approver string, at time.Time) (bool, error) {
	rec, ok := s.data[id]
	if !ok || rec.IsApproved {
		return false, nil
	}
	rec.IsApproved = true
	rec.ApprovedBy = approver
	rec.ApprovedAt = at
	s.data[id] = rec
	return true, nil
}

func (s *StubRepo) LatestPerAccount(ctx context.Context, accountIDs []int, asOf time.Time) (map[int]EVMRecord, error) {
	wanted := map[int]bool{}
	for _, id := range accountIDs {
		wanted[id] = true
	}
	latest := map[int]EVMRecord{}
	for _, rec := range s.data {
		if !wanted[rec.ControlAccountID] || rec.DataDate.After(asOf) {
			continue
		}
		existing, ok := latest[rec.ControlAccountID]
		if !ok || rec.DataDate.After(existing.DataDate) {
			latest[rec.ControlAccountID] = rec
		}
	}
	return latest, nil
}

func (s *StubRepo) ListByAccount(ctx context.Context, controlAccountID int) ([]EVMRecord, error) {
	var records []EVMRecord
	for _, rec := range s.data {
		if rec.ControlAccountID == controlAccountID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].DataDate.Before(records[j].DataDate) })
	return records, nil
}

func (s *StubRepo) Cleanup() {
	s.data = map[int]EVMRecord{}
}
