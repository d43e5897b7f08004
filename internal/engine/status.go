package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/engine/auth"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/events"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/notify"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/repo"
)

type ChangeStatusInput struct {
	Status     domain.Status `json:"status"`
	AdminNotes *string       `json:"admin_notes,omitempty"`
}

// ChangeStatus moves a ticket to in.Status. An authorized move to the current
// status changes nothing unless it carries admin notes, which are then stored
// without a status event or notification.
func (e Engine) ChangeStatus(ctx context.Context, actorID, id string, in ChangeStatusInput) (domain.Ticket, error) {
	to, err := domain.ParseStatus(string(in.Status))
	if err != nil {
		return domain.Ticket{}, err
	}
	ev, err := e.evaluator(ctx, actorID, "change ticket status")
	if err != nil {
		return domain.Ticket{}, err
	}
	t, err := e.Repo.GetTicket(ctx, id)
	if err != nil {
		return domain.Ticket{}, err
	}
	from := t.Status
	if !ev.CanChangeStatus(t, to) {
		return domain.Ticket{}, auth.ForbiddenError{Action: fmt.Sprintf("change status from %s to %s", from, to)}
	}
	if in.AdminNotes != nil && !ev.Actor.IsAdmin() {
		return domain.Ticket{}, auth.ForbiddenError{Action: "set admin notes"}
	}
	if from == to && in.AdminNotes == nil {
		return t, nil
	}

	var notes *string
	if in.AdminNotes != nil {
		trimmed := strings.TrimSpace(*in.AdminNotes)
		notes = &trimmed
	}
	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTicketStatus(ctx, tx, t.ID, to, notes, now); err != nil {
		return domain.Ticket{}, err
	}
	evType, payload := events.TicketStatusChanged, events.EventPayload{"from": from, "to": to}
	if from == to {
		evType, payload = events.TicketUpdated, events.EventPayload{}
	}
	if notes != nil {
		payload["admin_notes"] = *notes
	}
	if err := e.Events.Append(ctx, tx, evType, events.KindTicket, t.ID, actorID, payload); err != nil {
		return domain.Ticket{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Ticket{}, err
	}
	if from == to {
		return e.Repo.GetTicket(ctx, t.ID)
	}

	t.Status = to
	if actorID != t.OwnerUserID {
		e.notifyOwner(ctx, t, actorID)
	}
	if to == domain.StatusSubmitted {
		e.notifyAdminsSubmitted(ctx, t)
	}
	return e.Repo.GetTicket(ctx, t.ID)
}

// notifyOwner tells the ticket owner about a status change. Owners without a
// profile email are skipped.
func (e Engine) notifyOwner(ctx context.Context, t domain.Ticket, actorID string) {
	owner, err := e.Repo.GetProfile(ctx, t.OwnerUserID)
	if err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			e.logger().WarnContext(ctx, "load owner profile", slog.String("user_id", t.OwnerUserID), slog.Any("error", err))
		}
		return
	}
	if owner.Email == "" {
		return
	}
	n := notify.Notification{
		Type:         notify.TypeStatusUpdate,
		To:           owner.Email,
		TicketID:     t.ID,
		TicketTitle:  t.Title,
		CustomerName: owner.DisplayName(),
		Status:       t.Status.Label(),
	}
	if t.Status == domain.StatusApprovedPaid {
		n.Type = notify.TypeCompletion
		if p, err := e.Repo.GetProfile(ctx, actorID); err == nil {
			n.AssignedTo = p.DisplayName()
		}
	}
	e.dispatch(ctx, n)
}

// notifyAdminsSubmitted tells every admin with an email that a ticket
// awaits review.
func (e Engine) notifyAdminsSubmitted(ctx context.Context, t domain.Ticket) {
	roles, err := e.Repo.ListUserRoles(ctx)
	if err != nil {
		e.logger().WarnContext(ctx, "list admins", slog.Any("error", err))
		return
	}
	customer := "Customer"
	if p, err := e.Repo.GetProfile(ctx, t.OwnerUserID); err == nil {
		customer = p.DisplayName()
	}
	for _, ur := range roles {
		if ur.Role != domain.RoleAdmin || ur.UserID == t.OwnerUserID {
			continue
		}
		p, err := e.Repo.GetProfile(ctx, ur.UserID)
		if err != nil || p.Email == "" {
			continue
		}
		e.dispatch(ctx, notify.Notification{
			Type:         notify.TypeAssignment,
			To:           p.Email,
			TicketID:     t.ID,
			TicketTitle:  t.Title,
			CustomerName: customer,
			Status:       t.Status.Label(),
		})
	}
}

// dispatch hands n off without failing the caller.
func (e Engine) dispatch(ctx context.Context, n notify.Notification) {
	if e.Notifier == nil {
		return
	}
	if err := e.Notifier.Dispatch(context.WithoutCancel(ctx), n); err != nil {
		e.logger().WarnContext(ctx, "notification dispatch failed", slog.String("ticket_id", n.TicketID), slog.String("type", string(n.Type)), slog.Any("error", err))
	}
}
