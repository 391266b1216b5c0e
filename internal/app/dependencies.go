package app

import (
	"github.com/costwise/costwise/internal/config"
	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/budget"
	"github.com/costwise/costwise/pkg/commitment"
	"github.com/costwise/costwise/pkg/control_account"
	"github.com/costwise/costwise/pkg/cost_item"
	"github.com/costwise/costwise/pkg/evm"
	"github.com/costwise/costwise/pkg/forecast"
	"github.com/costwise/costwise/pkg/report"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	EventBus *event_bus.EventBus

	ControlAccountRepo    control_account.Repo
	ControlAccountService *control_account.ServiceImpl
	ControlAccountHandler *control_account.Handler

	EvmRepo    evm.Repo
	EvmService *evm.ServiceImpl
	EvmHandler *evm.Handler

	ForecastService *forecast.ServiceImpl
	ForecastHandler *forecast.Handler

	ReportService     *report.ServiceImpl
	ReportCsvRenderer *report.CsvRendererImpl
	ReportHandler     *report.Handler

	BudgetRepo    budget.Repo
	BudgetService *budget.ServiceImpl
	BudgetHandler *budget.Handler

	CommitmentRepo    commitment.Repo
	CommitmentService *commitment.ServiceImpl
	CommitmentHandler *commitment.Handler

	CostItemRepo    cost_item.Repo
	CostItemService *cost_item.ServiceImpl
	CostItemHandler *cost_item.Handler

	Clock utils.Clock
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(db *pgxpool.Pool, cfg config.Application) *Dependencies {
	deps := &Dependencies{}

	deps.Clock = utils.SystemClock{}
	deps.EventBus = event_bus.NewEventBus()
	registerAuditLog(deps.EventBus)

	deps.ControlAccountRepo = control_account.NewRepo(db)
	deps.ControlAccountService = control_account.NewService(deps.ControlAccountRepo, deps.Clock)
	deps.ControlAccountHandler = control_account.NewHandler(deps.ControlAccountService)

	deps.EvmRepo = evm.NewRepo(db)
	deps.EvmService = evm.NewService(deps.EvmRepo, deps.ControlAccountRepo, deps.Clock)
	deps.EvmHandler = evm.NewHandler(deps.EvmService)

	deps.ForecastService = forecast.NewService(deps.EvmService, deps.Clock, cfg.Reporting.DefaultRemainingDays)
	deps.ForecastHandler = forecast.NewHandler(deps.ForecastService)

	deps.ReportService = report.NewService(deps.ControlAccountRepo, deps.EvmRepo, deps.EvmService, cfg.Reporting.DefaultTrendPoints)
	deps.ReportCsvRenderer = report.NewCsvRenderer()
	deps.ReportHandler = report.NewHandler(deps.ReportService, deps.ReportCsvRenderer)

	deps.BudgetRepo = budget.NewRepo(db)
	deps.BudgetService = budget.NewService(deps.BudgetRepo, deps.EventBus, deps.Clock)
	deps.BudgetHandler = budget.NewHandler(deps.BudgetService)

	deps.CommitmentRepo = commitment.NewRepo(db)
	deps.CommitmentService = commitment.NewService(deps.CommitmentRepo, deps.EventBus, deps.Clock)
	deps.CommitmentHandler = commitment.NewHandler(deps.CommitmentService, deps.Clock)

	deps.CostItemRepo = cost_item.NewRepo(db)
	deps.CostItemService = cost_item.NewService(deps.CostItemRepo, deps.Clock)
	deps.CostItemHandler = cost_item.NewHandler(deps.CostItemService)

	return deps
}

// registerAuditLog subscribes a structured-log listener to every lifecycle
// event so approvals, rejections, and revisions leave a trail even before
// they land in any downstream system.
func registerAuditLog(bus *event_bus.EventBus) {
	budgetEvents := []event_bus.EventType{
		"budget.submitted", "budget.approved", "budget.rejected",
		"budget.baselined", "budget.locked",
	}
	for _, eventType := range budgetEvents {
		event_bus.SubscribeTyped[event_bus.BudgetStatusChanged](bus, eventType,
			func(e event_bus.EventT[event_bus.BudgetStatusChanged]) error {
				log.WithFields(log.Fields{
					"event":    e.Type,
					"budgetId": e.Data.BudgetID,
					"version":  e.Data.Version,
					"from":     e.Data.From,
					"to":       e.Data.To,
					"actor":    e.Data.Actor,
				}).Info("budget status changed")
				return nil
			})
	}
	event_bus.SubscribeTyped[event_bus.BudgetRevisionCreated](bus, "budget.revised",
		func(e event_bus.EventT[event_bus.BudgetRevisionCreated]) error {
			log.WithFields(log.Fields{
				"event":          e.Type,
				"sourceBudgetId": e.Data.SourceBudgetID,
				"newBudgetId":    e.Data.NewBudgetID,
				"revision":       e.Data.RevisionNumber,
				"actor":          e.Data.Actor,
			}).Info("budget revision created")
			return nil
		})

	commitmentEvents := []event_bus.EventType{
		"commitment.approved", "commitment.activated", "commitment.closed",
	}
	for _, eventType := range commitmentEvents {
		event_bus.SubscribeTyped[event_bus.CommitmentStatusChanged](bus, eventType,
			func(e event_bus.EventT[event_bus.CommitmentStatusChanged]) error {
				log.WithFields(log.Fields{
					"event":        e.Type,
					"commitmentId": e.Data.CommitmentID,
					"reference":    e.Data.Reference,
					"from":         e.Data.From,
					"to":           e.Data.To,
					"actor":        e.Data.Actor,
				}).Info("commitment status changed")
				return nil
			})
	}
	event_bus.SubscribeTyped[event_bus.CommitmentRevisionCreated](bus, "commitment.revised",
		func(e event_bus.EventT[event_bus.CommitmentRevisionCreated]) error {
			log.WithFields(log.Fields{
				"event":        e.Type,
				"commitmentId": e.Data.CommitmentID,
				"revision":     e.Data.RevisionNumber,
				"newAmount":    e.Data.NewAmount.String(),
				"actor":        e.Data.Actor,
			}).Info("commitment revision created")
			return nil
		})
}
