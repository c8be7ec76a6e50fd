package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type MilestoneStatus string

const (
	MilestonePending   MilestoneStatus = "pending"
	MilestoneCompleted MilestoneStatus = "completed"
	MilestoneVerified  MilestoneStatus = "verified"
	MilestonePaid      MilestoneStatus = "paid"
)

// milestoneNext is the only legal successor of each status; paid is terminal.
var milestoneNext = map[MilestoneStatus]MilestoneStatus{
	MilestonePending:   MilestoneCompleted,
	MilestoneCompleted: MilestoneVerified,
	MilestoneVerified:  MilestonePaid,
}

// MilestoneStatuses lists the statuses in lifecycle order.
var MilestoneStatuses = []MilestoneStatus{
	MilestonePending,
	MilestoneCompleted,
	MilestoneVerified,
	MilestonePaid,
}

// Valid reports whether s is one of the four lifecycle statuses.
func (s MilestoneStatus) Valid() bool {
	switch s {
	case MilestonePending, MilestoneCompleted, MilestoneVerified, MilestonePaid:
		return true
	}
	return false
}

// Next returns the successor of s, or false when s is terminal or unknown.
func (s MilestoneStatus) Next() (MilestoneStatus, bool) {
	next, ok := milestoneNext[s]
	return next, ok
}

// Done reports whether work on the milestone has been delivered.
func (s MilestoneStatus) Done() bool {
	return s == MilestoneCompleted || s == MilestoneVerified || s == MilestonePaid
}

type Milestone struct {
	ID               int64           `json:"id"`
	ContractID       int64           `json:"contract_id"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Amount           decimal.Decimal `json:"amount"`
	DueDate          *time.Time      `json:"due_date,omitempty"`
	Order            int             `json:"order"`
	Status           MilestoneStatus `json:"status"`
	CompletionDate   *time.Time      `json:"completion_date,omitempty"`
	VerificationDate *time.Time      `json:"verification_date,omitempty"`
	PaymentDate      *time.Time      `json:"payment_date,omitempty"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	DeliverableURL   *string         `json:"deliverable_url,omitempty"`
	Notes            *string         `json:"notes,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
