package milestone

import (
	"github.com/shopspring/decimal"

	"contracthub/internal/model"
)

// Summary aggregates progress and money over a contract's milestones.
type Summary struct {
	Total           int             `json:"total"`
	Done            int             `json:"done"`
	Paid            int             `json:"paid"`
	ProgressPercent float64         `json:"progress_percent"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	PaidAmount      decimal.Decimal `json:"paid_amount"`
}

// Summarize counts completed, verified and paid milestones as done.
func Summarize(milestones []model.Milestone) Summary {
	s := Summary{
		Total:       len(milestones),
		TotalAmount: decimal.Zero,
		PaidAmount:  decimal.Zero,
	}

	for _, m := range milestones {
		s.TotalAmount = s.TotalAmount.Add(m.Amount)
		if m.Status.Done() {
			s.Done++
		}
		if m.Status == model.MilestonePaid {
			s.Paid++
			s.PaidAmount = s.PaidAmount.Add(m.Amount)
		}
	}

	if s.Total > 0 {
		s.ProgressPercent = float64(s.Done) / float64(s.Total) * 100
	}
	return s
}

func allPaid(milestones []model.Milestone) bool {
	for _, m := range milestones {
		if m.Status != model.MilestonePaid {
			return false
		}
	}
	return len(milestones) > 0
}
