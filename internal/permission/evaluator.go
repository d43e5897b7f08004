package permission

import "github.com/Farmhouse441/farmhouse-service-hub/internal/domain"

// Policy carries product decisions that are not part of the per-role matrix.
type Policy struct {
	// OwnerEditable is the set of statuses in which an owner with
	// can_edit_own_tickets may edit their ticket.
	OwnerEditable StatusFlags
}

// DefaultPolicy lets owners edit drafts only.
func DefaultPolicy() Policy {
	return Policy{OwnerEditable: FlagsFor(domain.StatusDraft)}
}

// Evaluator answers authorization questions for one actor. All methods are
// pure and total; inputs are validated before they get here.
type Evaluator struct {
	Actor  domain.Actor
	Matrix Matrix
	Policy Policy
}

func NewEvaluator(actor domain.Actor, m Matrix, p Policy) Evaluator {
	return Evaluator{Actor: actor, Matrix: m, Policy: p}
}

func (e Evaluator) owns(t domain.Ticket) bool {
	return e.Actor.UserID != "" && t.OwnerUserID == e.Actor.UserID
}

func (e Evaluator) CanCreate() bool {
	return e.Matrix.CanCreateServiceTicket
}

func (e Evaluator) CanView(t domain.Ticket) bool {
	return e.Matrix.CanViewAllTickets || (e.Matrix.CanViewOwnTickets && e.owns(t))
}

func (e Evaluator) CanEdit(t domain.Ticket) bool {
	if e.Matrix.CanEditAllTickets {
		return true
	}
	return e.owns(t) && e.Matrix.CanEditOwnTickets && e.Policy.OwnerEditable.Get(t.Status)
}

// CanDelete requires the per-status delete flag. Non-admins must also own the
// ticket and it must still be a draft.
func (e Evaluator) CanDelete(t domain.Ticket) bool {
	if !e.Matrix.Delete.Get(t.Status) {
		return false
	}
	if e.Actor.IsAdmin() {
		return true
	}
	return e.owns(t) && t.Status == domain.StatusDraft
}

// CanChangeStatus checks leaving the current status and entering the target
// independently. There is no adjacency table.
func (e Evaluator) CanChangeStatus(t domain.Ticket, to domain.Status) bool {
	return e.Matrix.ChangeFrom.Get(t.Status) && e.Matrix.ChangeTo.Get(to)
}

// Transitions lists the statuses the actor may move t to.
func (e Evaluator) Transitions(t domain.Ticket) []domain.Status {
	var out []domain.Status
	for _, s := range domain.Statuses {
		if e.CanChangeStatus(t, s) {
			out = append(out, s)
		}
	}
	return out
}

// Capabilities summarizes what the actor can do with a ticket.
type Capabilities struct {
	CanView     bool            `json:"can_view"`
	CanEdit     bool            `json:"can_edit"`
	CanDelete   bool            `json:"can_delete"`
	Transitions []domain.Status `json:"transitions"`
}

func (e Evaluator) Capabilities(t domain.Ticket) Capabilities {
	return Capabilities{
		CanView:     e.CanView(t),
		CanEdit:     e.CanEdit(t),
		CanDelete:   e.CanDelete(t),
		Transitions: e.Transitions(t),
	}
}

// Scope is the set of tickets an actor may list.
type Scope int

const (
	ScopeNone Scope = iota
	ScopeOwn
	ScopeAll
)

func (e Evaluator) ViewScope() Scope {
	switch {
	case e.Matrix.CanViewAllTickets:
		return ScopeAll
	case e.Matrix.CanViewOwnTickets:
		return ScopeOwn
	default:
		return ScopeNone
	}
}
