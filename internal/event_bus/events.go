package event_bus

import "github.com/shopspring/decimal"

// BudgetStatusChanged is published on every budget lifecycle transition
// (budget.submitted, budget.approved, budget.rejected, budget.baselined,
// budget.locked).
type BudgetStatusChanged struct {
	BudgetID  int
	ProjectID int
	Version   string
	From      string
	To        string
	Actor     string
}

// BudgetRevisionCreated is published as budget.revised when an approved or
// baselined budget spawns a new draft.
type BudgetRevisionCreated struct {
	SourceBudgetID int
	NewBudgetID    int
	ProjectID      int
	RevisionNumber int
	Reason         string
	Actor          string
}

// CommitmentStatusChanged is published on commitment.approved,
// commitment.activated and commitment.closed.
type CommitmentStatusChanged struct {
	CommitmentID int
	ProjectID    int
	Reference    string
	From         string
	To           string
	Actor        string
}

// CommitmentRevisionCreated is published as commitment.revised.
type CommitmentRevisionCreated struct {
	CommitmentID   int
	ProjectID      int
	RevisionNumber int
	NewAmount      decimal.Decimal
	Reason         string
	Actor          string
}
