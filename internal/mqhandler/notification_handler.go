package mqhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	mqcontracts "contracthub/contracts/mq"
	"contracthub/internal/model"
	"contracthub/pkg/logger"
	"contracthub/pkg/metrics"
)

const dedupHandler = "notification"

type NotificationStore interface {
	Insert(ctx context.Context, n *model.Notification) (bool, error)
}

// Deduper is satisfied by util.Deduper.
type Deduper interface {
	AcquireOnce(ctx context.Context, handler, key string) bool
	Release(ctx context.Context, handler, key string)
}

// NotificationHandler turns workflow events into in-app notifications for
// the counterparty of each change.
type NotificationHandler struct {
	repo   NotificationStore
	dedup  Deduper
	logger *zap.Logger
}

func NewNotificationHandler(repo NotificationStore, dedup Deduper, logger *zap.Logger) *NotificationHandler {
	return &NotificationHandler{
		repo:   repo,
		dedup:  dedup,
		logger: logger,
	}
}

// HandleMilestoneStatusChanged -- completed 通知公司，verified / paid 通知承包商
func (h *NotificationHandler) HandleMilestoneStatusChanged(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.MilestoneStatusChangedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal milestone status payload", zap.Error(err))
		return err
	}

	var (
		recipient int64
		content   string
	)
	switch model.MilestoneStatus(p.To) {
	case model.MilestoneCompleted:
		recipient = p.CompanyID
		content = fmt.Sprintf("Milestone %q was marked completed and is waiting for verification", p.Title)
	case model.MilestoneVerified:
		recipient = p.ContractorID
		content = fmt.Sprintf("Milestone %q was verified", p.Title)
	case model.MilestonePaid:
		recipient = p.ContractorID
		content = fmt.Sprintf("Milestone %q was paid (%s)", p.Title, p.Amount)
	default:
		h.logger.Warn("Ignoring milestone event with unexpected status", zap.String("to", p.To))
		return nil
	}

	return h.notify(ctx, p.EventKey, "milestone_"+p.To, content, recipient)
}

// HandleContractCompleted notifies both parties.
func (h *NotificationHandler) HandleContractCompleted(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.ContractCompletedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal contract completed payload", zap.Error(err))
		return err
	}
	content := fmt.Sprintf("Contract #%d is complete: every milestone has been paid (total %s)", p.ContractID, p.TotalAmount)
	return h.notify(ctx, p.EventKey, "contract_completed", content, p.CompanyID, p.ContractorID)
}

// HandleProjectCompleted notifies both parties of the closing contract.
func (h *NotificationHandler) HandleProjectCompleted(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.ProjectCompletedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal project completed payload", zap.Error(err))
		return err
	}
	content := fmt.Sprintf("Project #%d is complete", p.ProjectID)
	return h.notify(ctx, p.EventKey, "project_completed", content, p.CompanyID, p.ContractorID)
}

// HandleContractCreated tells the contractor their bid was accepted.
func (h *NotificationHandler) HandleContractCreated(ctx context.Context, raw json.RawMessage) error {
	var p mqcontracts.ContractCreatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.logger.Error("Failed to unmarshal contract created payload", zap.Error(err))
		return err
	}
	content := fmt.Sprintf("Your bid of %s on %q was accepted, contract #%d is active", p.Amount, p.ProjectTitle, p.ContractID)
	return h.notify(ctx, p.EventKey, "bid_accepted", content, p.ContractorID)
}

// notify writes one notification per recipient. The Redis key keeps a
// redelivered event from being processed twice; the unique (user_id,
// event_key) index covers the window where Redis is unavailable.
func (h *NotificationHandler) notify(ctx context.Context, eventKey, typ, content string, recipients ...int64) error {
	log := logger.WithTrace(ctx, h.logger).With(zap.String("event_key", eventKey), zap.String("type", typ))

	if eventKey == "" {
		log.Warn("Dropping event without event_key")
		return nil
	}
	if !h.dedup.AcquireOnce(ctx, dedupHandler, eventKey) {
		return nil
	}

	for _, userID := range recipients {
		if userID == 0 {
			continue
		}
		n := &model.Notification{
			UserID:   userID,
			Type:     typ,
			Content:  content,
			EventKey: eventKey,
		}
		inserted, err := h.repo.Insert(ctx, n)
		if err != nil {
			log.Error("Failed to insert notification", zap.Int64("user_id", userID), zap.Error(err))
			h.dedup.Release(ctx, dedupHandler, eventKey)
			return err
		}
		if inserted {
			metrics.IncrementNotification(typ)
		}
	}

	log.Info("Notifications created", zap.Int("recipients", len(recipients)))
	return nil
}
