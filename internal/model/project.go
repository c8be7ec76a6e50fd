package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ProjectStatus string

const (
	ProjectOpen       ProjectStatus = "open"
	ProjectInProgress ProjectStatus = "in_progress"
	ProjectCompleted  ProjectStatus = "completed"
	ProjectCancelled  ProjectStatus = "cancelled"
)

// ProjectCategories lists the accepted project categories.
var ProjectCategories = []string{
	"construction",
	"electrical",
	"painting",
	"plumbing",
	"labour",
	"transportation",
	"other",
}

type Project struct {
	ID          int64           `json:"id"`
	CompanyID   int64           `json:"company_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Location    string          `json:"location"`
	BudgetMin   decimal.Decimal `json:"budget_min"`
	BudgetMax   decimal.Decimal `json:"budget_max"`
	StartDate   *time.Time      `json:"start_date,omitempty"`
	EndDate     *time.Time      `json:"end_date,omitempty"`
	Duration    string          `json:"duration,omitempty"` // e.g. "2-3 months"
	Status      ProjectStatus   `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ProjectFilter narrows project listings; empty fields match everything.
type ProjectFilter struct {
	Category string
	Status   string
	Location string
}
