package control_account

import (
	"context"

	"github.com/shopspring/decimal"
)

type StubRepo struct {
	nextId     int
	nextWpId   int
	data       map[int]ControlAccount
	packages   map[int][]WorkPackage
	projectIds map[int]bool
}

func NewStubRepo() *StubRepo {
	return &StubRepo{
		data:       map[int]ControlAccount{},
		packages:   map[int][]WorkPackage{},
		projectIds: map[int]bool{1: true},
	}
}

func (s *StubRepo) Store(ctx context.Context, ca ControlAccount) (int, error) {
	s.nextId++
	ca.ID = s.nextId
	s.data[ca.ID] = ca
	return ca.ID, nil
}

func (s *StubRepo) Get(ctx context.Context, id int) (ControlAccount, error) {
	ca, ok := s.data[id]
	if !ok || ca.IsDeleted {
		return ControlAccount{}, ErrControlAccountNotFound
	}
	return ca, nil
}

func (s *StubRepo) Update(ctx context.Context, ca ControlAccount) (bool, error) {
	current, ok := s.data[ca.ID]
	if !ok || current.IsDeleted {
		return false, nil
	}
	ca.Status = current.Status
	s.data[ca.ID] = ca
	return true, nil
}

func (s *StubRepo) UpdateStatus(ctx context.Context, id int, from, to Status) (bool, error) {
	ca, ok := s.data[id]
	if !ok || ca.Status != from {
		return false, nil
	}
	ca.Status = to
	s.data[id] = ca
	return true, nil
}

func (s *StubRepo) ListActive(ctx context.Context, projectID int) ([]ControlAccount, error) {
	accounts := make([]ControlAccount, 0, len(s.data))
	for _, ca := range s.data {
		if ca.ProjectID == projectID && !ca.IsDeleted {
			accounts = append(accounts, ca)
		}
	}
	return accounts, nil
}

func (s *StubRepo) ProjectExists(ctx context.Context, projectID int) (bool, error) {
	return s.projectIds[projectID], nil
}

func (s *StubRepo) AddProject(projectID int) {
	s.projectIds[projectID] = true
}

func (s *StubRepo) StoreWorkPackage(ctx context.Context, wp WorkPackage) (int, error) {
	s.nextWpId++
	wp.ID = s.nextWpId
	s.packages[wp.ControlAccountID] = append(s.packages[wp.ControlAccountID], wp)
	return wp.ID, nil
}

func (s *StubRepo) GetWorkPackages(ctx context.Context, controlAccountID int) ([]WorkPackage, error) {
	return s.packages[controlAccountID], nil
}

func (s *StubRepo) UpdateWorkPackageProgress(ctx context.Context, workPackageID int, progress decimal.Decimal) (bool, error) {
	for caId, packages := range s.packages {
		for i, wp := range packages {
			if wp.ID == workPackageID {
				s.packages[caId][i].ProgressPercent = progress
				return true, nil
			}
		}
	}
	return false, nil
}

func (s *StubRepo) Delete(ctx context.Context, id int) (bool, error) {
	ca, ok := s.data[id]
	if !ok || ca.IsDeleted {
		return false, nil
	}
	ca.IsDeleted = true
	s.data[id] = ca
	return true, nil
}

func (s *StubRepo) Cleanup() {
	s.data = map[int]ControlAccount{}
	s.packages = map[int][]WorkPackage{}
	s.projectIds = map[int]bool{1: true}
}
