package control_account

import (
	"context"
	"errors"
	"fmt"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/user"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidStatusTransition = errors.New("invalid control account status transition")
var ErrAccountClosed = errors.New("closed control accounts cannot be updated")
var ErrInvalidMeasurementMethod = errors.New("invalid measurement method")

type Service interface {
	Create(ctx context.Context, ca ControlAccount) (ControlAccount, error)
	Get(ctx context.Context, id int) (ControlAccount, error)
	ListByProject(ctx context.Context, projectID int) ([]ControlAccount, error)
	Update(ctx context.Context, ca ControlAccount) (ControlAccount, error)
	Baseline(ctx context.Context, id int) (ControlAccount, error)
	Start(ctx context.Context, id int) (ControlAccount, error)
	Close(ctx context.Context, id int) (ControlAccount, error)
	Delete(ctx context.Context, id int) (bool, error)
	AddWorkPackage(ctx context.Context, wp WorkPackage) (WorkPackage, error)
	UpdateWorkPackageProgress(ctx context.Context, workPackageID int, progress decimal.Decimal) (bool, error)
}

type ServiceImpl struct {
	repo  Repo
	clock utils.Clock
}

func NewService(repo Repo, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, clock: clock}
}

func (s *ServiceImpl) Create(ctx context.Context, ca ControlAccount) (ControlAccount, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return ControlAccount{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if !ca.MeasurementMethod.IsValid() {
		return ControlAccount{}, fmt.Errorf("%w: %q", ErrInvalidMeasurementMethod, ca.MeasurementMethod)
	}
	exists, err := s.repo.ProjectExists(ctx, ca.ProjectID)
	if err != nil {
		return ControlAccount{}, err
	}
	if !exists {
		return ControlAccount{}, fmt.Errorf("%w: %d", ErrProjectNotFound, ca.ProjectID)
	}

	ca.Uid = uuid.NewString()
	ca.Status = StatusPlanning
	ca.CreatedBy = actor
	ca.CreatedAt = s.clock.Now()

	id, err := s.repo.Store(ctx, ca)
	if err != nil {
		return ControlAccount{}, err
	}
	ca.ID = id
	return ca, nil
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (ControlAccount, error) {
	ca, err := s.repo.Get(ctx, id)
	if err != nil {
		return ControlAccount{}, err
	}
	packages, err := s.repo.GetWorkPackages(ctx, id)
	if err != nil {
		return ControlAccount{}, err
	}
	ca.WorkPackages = packages
	return ca, nil
}

func (s *ServiceImpl) ListByProject(ctx context.Context, projectID int) ([]ControlAccount, error) {
	return s.repo.ListActive(ctx, projectID)
}

func (s *ServiceImpl) Update(ctx context.Context, ca ControlAccount) (ControlAccount, error) {
	current, err := s.repo.Get(ctx, ca.ID)
	if err != nil {
		return ControlAccount{}, err
	}
	if current.Status == StatusClosed {
		return ControlAccount{}, ErrAccountClosed
	}
	if !ca.MeasurementMethod.IsValid() {
		return ControlAccount{}, fmt.Errorf("%w: %q", ErrInvalidMeasurementMethod, ca.MeasurementMethod)
	}
	updated, err := s.repo.Update(ctx, ca)
	if err != nil {
		return ControlAccount{}, err
	}
	if !updated {
		log.Warnf("control account %d not updated, probably deleted concurrently", ca.ID)
		return ControlAccount{}, ErrControlAccountNotFound
	}
	return s.repo.Get(ctx, ca.ID)
}

func (s *ServiceImpl) Baseline(ctx context.Context, id int) (ControlAccount, error) {
	return s.transition(ctx, id, StatusBaselined)
}

func (s *ServiceImpl) Start(ctx context.Context, id int) (ControlAccount, error) {
	return s.transition(ctx, id, StatusInProgress)
}

func (s *ServiceImpl) Close(ctx context.Context, id int) (ControlAccount, error) {
	return s.transition(ctx, id, StatusClosed)
}

func (s *ServiceImpl) transition(ctx context.Context, id int, target Status) (ControlAccount, error) {
	ca, err := s.repo.Get(ctx, id)
	if err != nil {
		return ControlAccount{}, err
	}
	if !ca.Status.CanTransition(target) {
		return ControlAccount{}, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, ca.Status, target)
	}
	moved, err := s.repo.UpdateStatus(ctx, id, ca.Status, target)
	if err != nil {
		return ControlAccount{}, err
	}
	if !moved {
		// another writer changed the status between read and write
		return ControlAccount{}, fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	ca.Status = target
	return ca, nil
}

func (s *ServiceImpl) Delete(ctx context.Context, id int) (bool, error) {
	return s.repo.Delete(ctx, id)
}

func (s *ServiceImpl) AddWorkPackage(ctx context.Context, wp WorkPackage) (WorkPackage, error) {
	ca, err := s.repo.Get(ctx, wp.ControlAccountID)
	if err != nil {
		return WorkPackage{}, err
	}
	if ca.Status == StatusClosed {
		return WorkPackage{}, ErrAccountClosed
	}
	id, err := s.repo.StoreWorkPackage(ctx, wp)
	if err != nil {
		return WorkPackage{}, err
	}
	wp.ID = id
	return wp, nil
}

func (s *ServiceImpl) UpdateWorkPackageProgress(ctx context.Context, workPackageID int, progress decimal.Decimal) (bool, error) {
	if progress.IsNegative() || progress.GreaterThan(decimal.NewFromInt(100)) {
		return false, fmt.Errorf("progress must be between 0 and 100, got %s", progress)
	}
	updated, err := s.repo.UpdateWorkPackageProgress(ctx, workPackageID, progress)
	if err != nil {
		return false, err
	}
	if !updated {
		return false, ErrWorkPackageNotFound
	}
	return true, nil
}
