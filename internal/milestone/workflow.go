package milestone

import (
	"fmt"

	"contracthub/internal/apperr"
	"contracthub/internal/model"
	"contracthub/pkg/rbac"
)

// Transition is one step of the milestone lifecycle.
type Transition struct {
	From model.MilestoneStatus
	To   model.MilestoneStatus
}

var (
	markCompleted = Transition{From: model.MilestonePending, To: model.MilestoneCompleted}
	markVerified  = Transition{From: model.MilestoneCompleted, To: model.MilestoneVerified}
	markPaid      = Transition{From: model.MilestoneVerified, To: model.MilestonePaid}
)

// permissions is the role × transition matrix. Anything absent is denied.
var permissions = map[rbac.Role]map[Transition]bool{
	rbac.RoleContractor: {markCompleted: true},
	rbac.RoleCompany:    {markVerified: true, markPaid: true},
	rbac.RoleAdmin:      {markCompleted: true, markVerified: true, markPaid: true},
}

// isNextStep reports whether to is the single legal successor of from.
func isNextStep(from, to model.MilestoneStatus) bool {
	next, ok := from.Next()
	return ok && next == to
}

// IsLegalTransition reports whether role may move a milestone from one status
// to another, ignoring contract ownership.
func IsLegalTransition(from, to model.MilestoneStatus, role rbac.Role) bool {
	return isNextStep(from, to) && permissions[role][Transition{From: from, To: to}]
}

// authorizeParty checks that the actor takes part in the contract in the
// capacity their role claims. Admins always pass.
func authorizeParty(actor model.Actor, c *model.Contract) error {
	switch actor.Role {
	case rbac.RoleAdmin:
		return nil
	case rbac.RoleContractor:
		if actor.ID == c.ContractorID {
			return nil
		}
		return fmt.Errorf("%w: user %d is not the contractor on contract %d", apperr.ErrForbidden, actor.ID, c.ID)
	case rbac.RoleCompany:
		if actor.ID == c.CompanyID {
			return nil
		}
		return fmt.Errorf("%w: user %d does not own the project of contract %d", apperr.ErrForbidden, actor.ID, c.ID)
	default:
		return fmt.Errorf("%w: unknown role %q", apperr.ErrForbidden, actor.Role)
	}
}

// authorizeTransition applies, in order: the party check, the adjacency
// table, then the role matrix.
func authorizeTransition(actor model.Actor, c *model.Contract, from, to model.MilestoneStatus) error {
	if err := authorizeParty(actor, c); err != nil {
		return err
	}
	if !isNextStep(from, to) {
		return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, from, to)
	}
	if !permissions[actor.Role][Transition{From: from, To: to}] {
		return fmt.Errorf("%w: %s may not move a milestone from %s to %s", apperr.ErrForbidden, actor.Role, from, to)
	}
	return nil
}

// authorizeOwner allows the company owning the contract's project, or an admin.
func authorizeOwner(actor model.Actor, c *model.Contract) error {
	switch {
	case actor.Role == rbac.RoleAdmin:
		return nil
	case actor.Role == rbac.RoleCompany && actor.ID == c.CompanyID:
		return nil
	}
	return fmt.Errorf("%w: only the owning company or an admin may manage milestones of contract %d", apperr.ErrForbidden, c.ID)
}

// authorizeViewer allows either party of the contract, or an admin.
func authorizeViewer(actor model.Actor, c *model.Contract) error {
	if actor.Role == rbac.RoleAdmin || c.IsParty(actor.ID) {
		return nil
	}
	return fmt.Errorf("%w: user %d is not a party to contract %d", apperr.ErrForbidden, actor.ID, c.ID)
}
