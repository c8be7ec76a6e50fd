package model

import "time"

type ContractStatus string

const (
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
)

// Contract is formed when a company accepts a bid. CompanyID and
// ContractorID are resolved from the project and the accepted bid.
type Contract struct {
	ID                 int64          `json:"id"`
	ProjectID          int64          `json:"project_id"`
	BidID              int64          `json:"bid_id"`
	CompanyID          int64          `json:"company_id"`
	ContractorID       int64          `json:"contractor_id"`
	StartDate          time.Time      `json:"start_date"`
	EndDate            *time.Time     `json:"end_date,omitempty"`
	TermsAndConditions string         `json:"terms_and_conditions,omitempty"`
	Status             ContractStatus `json:"status"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// IsParty reports whether userID is the owning company or the contractor.
func (c *Contract) IsParty(userID int64) bool {
	return userID == c.CompanyID || userID == c.ContractorID
}
