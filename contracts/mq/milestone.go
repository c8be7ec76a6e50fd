package mq

import (
	"fmt"
	"time"
)

// Routing keys on the events exchange.
const (
	RoutingMilestoneStatusChanged = "milestone.status_changed"
	RoutingContractCompleted      = "contract.completed"
	RoutingProjectCompleted       = "project.completed"
	RoutingContractCreated        = "contract.created"
)

// Aggregate types recorded on outbox rows.
const (
	AggregateMilestone = "milestone"
	AggregateContract  = "contract"
	AggregateProject   = "project"
)

// 里程碑状态变更事件
type MilestoneStatusChangedPayload struct {
	EventKey     string    `json:"event_key"` // milestone:<id>:<to>
	MilestoneID  int64     `json:"milestone_id"`
	ContractID   int64     `json:"contract_id"`
	ProjectID    int64     `json:"project_id"`
	CompanyID    int64     `json:"company_id"`
	ContractorID int64     `json:"contractor_id"`
	Title        string    `json:"title"`
	Amount       string    `json:"amount"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	ActorID      int64     `json:"actor_id"`
	ActorRole    string    `json:"actor_role"`
	ChangedAt    time.Time `json:"changed_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}

// 合同全部里程碑已付款
type ContractCompletedPayload struct {
	EventKey     string    `json:"event_key"` // contract:<id>:completed
	ContractID   int64     `json:"contract_id"`
	ProjectID    int64     `json:"project_id"`
	CompanyID    int64     `json:"company_id"`
	ContractorID int64     `json:"contractor_id"`
	TotalAmount  string    `json:"total_amount"`
	CompletedAt  time.Time `json:"completed_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}

// 项目下不再有进行中的合同
type ProjectCompletedPayload struct {
	EventKey     string    `json:"event_key"` // project:<id>:completed
	ProjectID    int64     `json:"project_id"`
	CompanyID    int64     `json:"company_id"`
	ContractorID int64     `json:"contractor_id"` // contractor of the contract that closed the project
	CompletedAt  time.Time `json:"completed_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}

// 中标后生成合同
type ContractCreatedPayload struct {
	EventKey     string    `json:"event_key"` // contract:<id>:created
	ContractID   int64     `json:"contract_id"`
	ProjectID    int64     `json:"project_id"`
	BidID        int64     `json:"bid_id"`
	CompanyID    int64     `json:"company_id"`
	ContractorID int64     `json:"contractor_id"`
	ProjectTitle string    `json:"project_title"`
	Amount       string    `json:"amount"`
	CreatedAt    time.Time `json:"created_at"`
	TraceID      string    `json:"trace_id,omitempty"`
}

func MilestoneEventKey(milestoneID int64, to string) string {
	return fmt.Sprintf("milestone:%d:%s", milestoneID, to)
}

func ContractCompletedEventKey(contractID int64) string {
	return fmt.Sprintf("contract:%d:completed", contractID)
}

func ProjectCompletedEventKey(projectID int64) string {
	return fmt.Sprintf("project:%d:completed", projectID)
}

func ContractCreatedEventKey(contractID int64) string {
	return fmt.Sprintf("contract:%d:created", contractID)
}
