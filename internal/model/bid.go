package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BidStatus string

const (
	BidPending   BidStatus = "pending"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
	BidWithdrawn BidStatus = "withdrawn"
)

type Bid struct {
	ID           int64           `json:"id"`
	ProjectID    int64           `json:"project_id"`
	ContractorID int64           `json:"contractor_id"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	DeliveryTime string          `json:"delivery_time,omitempty"` // e.g. "4 weeks"
	Status       BidStatus       `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// BidSummary is what non-owners see of a project's bids.
type BidSummary struct {
	Count      int             `json:"count"`
	AverageBid decimal.Decimal `json:"average_bid"`
}
