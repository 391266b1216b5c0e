package app

import (
	"github.com/gorilla/mux"
)

// RegisterRoutes registers all API endpoints.
func RegisterRoutes(r *mux.Router, deps *Dependencies) {

	// Control accounts
	r.HandleFunc("/api/control-account", deps.ControlAccountHandler.ListByProject).Queries("projectId", "{projectId}").Methods("GET")
	r.HandleFunc("/api/control-account", deps.ControlAccountHandler.Create).Methods("POST")
	r.HandleFunc("/api/control-account/{id}", deps.ControlAccountHandler.Get).Methods("GET")
	r.HandleFunc("/api/control-account/{id}", deps.ControlAccountHandler.Update).Methods("PUT")
	r.HandleFunc("/api/control-account/{id}", deps.ControlAccountHandler.Delete).Methods("DELETE")
	r.HandleFunc("/api/control-account/{id}/baseline", deps.ControlAccountHandler.Baseline).Methods("POST")
	r.HandleFunc("/api/control-account/{id}/start", deps.ControlAccountHandler.Start).Methods("POST")
	r.HandleFunc("/api/control-account/{id}/close", deps.ControlAccountHandler.Close).Methods("POST")

	// Work packages
	r.HandleFunc("/api/control-account/{id}/work-package", deps.ControlAccountHandler.AddWorkPackage).Methods("POST")
	r.HandleFunc("/api/control-account/{id}/work-package/{wpId}/progress", deps.ControlAccountHandler.UpdateWorkPackageProgress).Methods("PUT")

	// EVM records and performance
	r.HandleFunc("/api/evm/record", deps.EvmHandler.Record).Methods("POST")
	r.HandleFunc("/api/evm/record/{id}", deps.EvmHandler.Update).Methods("PUT")
	r.HandleFunc("/api/evm/record/{id}/approve", deps.EvmHandler.Approve).Methods("POST")
	r.HandleFunc("/api/evm/control-account/{id}/record", deps.EvmHandler.ListByAccount).Methods("GET")
	r.HandleFunc("/api/evm/project/{projectId}/performance", deps.EvmHandler.GetProjectPerformance).Methods("GET")

	// Forecasts
	r.HandleFunc("/api/forecast/project/{projectId}", deps.ForecastHandler.GetForecast).Methods("GET")

	// Reports
	r.HandleFunc("/api/report/project/{projectId}/nine-column", deps.ReportHandler.GetNineColumnReport).Methods("GET")
	r.HandleFunc("/api/report/project/{projectId}/validate", deps.ReportHandler.ValidateReport).Methods("GET")
	r.HandleFunc("/api/report/project/{projectId}/trend", deps.ReportHandler.GetTrend).Methods("GET")
	r.HandleFunc("/api/report/project/{projectId}/health", deps.ReportHandler.GetHealthCheck).Methods("GET")

	// Budgets
	r.HandleFunc("/api/budget", deps.BudgetHandler.ListByProject).Queries("projectId", "{projectId}").Methods("GET")
	r.HandleFunc("/api/budget", deps.BudgetHandler.Create).Methods("POST")
	r.HandleFunc("/api/budget/{id}", deps.BudgetHandler.Get).Methods("GET")
	r.HandleFunc("/api/budget/{id}", deps.BudgetHandler.Update).Methods("PUT")
	r.HandleFunc("/api/budget/{id}", deps.BudgetHandler.Delete).Methods("DELETE")
	r.HandleFunc("/api/budget/{id}/item", deps.BudgetHandler.AddItem).Methods("POST")
	r.HandleFunc("/api/budget/{id}/item/{itemId}", deps.BudgetHandler.UpdateItem).Methods("PUT")
	r.HandleFunc("/api/budget/{id}/item/{itemId}", deps.BudgetHandler.RemoveItem).Methods("DELETE")
	r.HandleFunc("/api/budget/{id}/submit", deps.BudgetHandler.Submit).Methods("POST")
	r.HandleFunc("/api/budget/{id}/approve", deps.BudgetHandler.Approve).Methods("POST")
	r.HandleFunc("/api/budget/{id}/reject", deps.BudgetHandler.Reject).Methods("POST")
	r.HandleFunc("/api/budget/{id}/baseline", deps.BudgetHandler.SetAsBaseline).Methods("POST")
	r.HandleFunc("/api/budget/{id}/lock", deps.BudgetHandler.Lock).Methods("POST")
	r.HandleFunc("/api/budget/{id}/revise", deps.BudgetHandler.Revise).Methods("POST")

	// Commitments
	r.HandleFunc("/api/commitment", deps.CommitmentHandler.ListByProject).Queries("projectId", "{projectId}").Methods("GET")
	r.HandleFunc("/api/commitment", deps.CommitmentHandler.Create).Methods("POST")
	r.HandleFunc("/api/commitment/{id}", deps.CommitmentHandler.Get).Methods("GET")
	r.HandleFunc("/api/commitment/{id}", deps.CommitmentHandler.Update).Methods("PUT")
	r.HandleFunc("/api/commitment/{id}", deps.CommitmentHandler.Delete).Methods("DELETE")
	r.HandleFunc("/api/commitment/{id}/item", deps.CommitmentHandler.AddItem).Methods("POST")
	r.HandleFunc("/api/commitment/{id}/allocation", deps.CommitmentHandler.Allocate).Methods("POST")
	r.HandleFunc("/api/commitment/{id}/submit", deps.CommitmentHandler.Submit).Methods("POST")
	r.HandleFunc("/api/commitment/{id}/approve", deps.CommitmentHandler.Approve).Methods("POST")
	r.HandleFunc("/api/commitment/{id}/reject", deps.CommitmentHandler.Reject).Methods("POST")
	r.HandleFunc("/api/commitment/{id}/activate", deps.CommitmentHandler.Activate).Methods("POST")
	r.HandleFunc("/api/commitment/{id}/cancel", deps.CommitmentHandler.Cancel).Methods("POST")
	r.HandleFunc("/api/commitment/{id}/close", deps.CommitmentHandler.Close).Methods("POST")
	r.HandleFunc("/api/commitment/{id}/invoice", deps.CommitmentHandler.RecordInvoice).Methods("POST")
	r.HandleFunc("/api/commitment/{id}/payment", deps.CommitmentHandler.RecordPayment).Methods("POST")
	r.HandleFunc("/api/commitment/{id}/revise", deps.CommitmentHandler.Revise).Methods("POST")

	// Cost items
	r.HandleFunc("/api/cost-item", deps.CostItemHandler.List).Queries("projectId", "{projectId}").Methods("GET")
	r.HandleFunc("/api/cost-item", deps.CostItemHandler.Create).Methods("POST")
	r.HandleFunc("/api/cost-item/{id}", deps.CostItemHandler.Get).Methods("GET")
	r.HandleFunc("/api/cost-item/{id}", deps.CostItemHandler.Update).Methods("PUT")
	r.HandleFunc("/api/cost-item/{id}", deps.CostItemHandler.Delete).Methods("DELETE")
	r.HandleFunc("/api/cost-item/project/{projectId}/rollup", deps.CostItemHandler.ProjectRollup).Methods("GET")
}
