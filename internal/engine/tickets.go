package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/engine/auth"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/events"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/permission"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/repo"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/storage"
)

// uploadLimit bounds concurrent attachment uploads for one request.
const uploadLimit = 4

// Rates are capped at 1,000,000.00 and totals at 10,000,000,000.00 (cents).
const (
	maxHourlyRate  = 100_000_000
	maxTotalAmount = 1_000_000_000_000
)

type LineItemInput struct {
	Description string  `json:"description" validate:"required,max=500"`
	Hours       float64 `json:"hours" validate:"gt=0,lte=10000"`
	HourlyRate  int64   `json:"hourly_rate" validate:"gte=0,lte=100000000"`
}

type CreateTicketInput struct {
	Title         string          `json:"title" validate:"required,max=200"`
	Description   string          `json:"description,omitempty" validate:"max=10000"`
	WorkStartDate string          `json:"work_start_date" validate:"required"`
	WorkEndDate   string          `json:"work_end_date" validate:"required"`
	HourlyRate    int64           `json:"hourly_rate,omitempty" validate:"gte=0,lte=100000000"`
	TotalAmount   int64           `json:"total_amount,omitempty" validate:"gte=0,lte=1000000000000"`
	InvoiceNumber string          `json:"invoice_number,omitempty" validate:"max=100"`
	BeforePhotos  []storage.File  `json:"before_photos,omitempty" validate:"dive"`
	AfterPhotos   []storage.File  `json:"after_photos,omitempty" validate:"dive"`
	Invoice       *storage.File   `json:"invoice,omitempty"`
	LineItems     []LineItemInput `json:"line_items,omitempty" validate:"dive"`
	// Submit creates the ticket directly in submitted.
	Submit bool `json:"submit,omitempty"`
}

// CreateTicket uploads attachments first, then inserts the ticket and its
// line items. Uploaded objects are logged as orphans when the insert fails.
func (e Engine) CreateTicket(ctx context.Context, actorID string, in CreateTicketInput) (domain.Ticket, error) {
	ev, err := e.evaluator(ctx, actorID, "create ticket")
	if err != nil {
		return domain.Ticket{}, err
	}
	if !ev.CanCreate() {
		return domain.Ticket{}, auth.ForbiddenError{Action: "create ticket"}
	}
	if in.Submit && !ev.CanChangeStatus(domain.Ticket{OwnerUserID: actorID, Status: domain.StatusDraft}, domain.StatusSubmitted) {
		return domain.Ticket{}, auth.ForbiddenError{Action: fmt.Sprintf("change status from %s to %s", domain.StatusDraft, domain.StatusSubmitted)}
	}
	if err := e.validate(in); err != nil {
		return domain.Ticket{}, err
	}
	start, end, err := normalizeWindow(in.WorkStartDate, in.WorkEndDate)
	if err != nil {
		return domain.Ticket{}, err
	}

	up, err := e.uploadAll(ctx, in.BeforePhotos, in.AfterPhotos, in.Invoice)
	if err != nil {
		return domain.Ticket{}, err
	}

	now := e.timestamp()
	t := domain.Ticket{
		ID:            uuid.NewString(),
		OwnerUserID:   actorID,
		Status:        domain.StatusDraft,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		WorkStartDate: start,
		WorkEndDate:   end,
		BeforePhotos:  up.before,
		AfterPhotos:   up.after,
		InvoiceFile:   up.invoice,
		HourlyRate:    in.HourlyRate,
		TotalAmount:   in.TotalAmount,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if in.Submit {
		t.Status = domain.StatusSubmitted
	}
	if in.InvoiceNumber != "" {
		t.InvoiceNumber = &in.InvoiceNumber
	}
	for i, li := range in.LineItems {
		item, err := newLineItem(t.ID, li, now)
		if err != nil {
			return domain.Ticket{}, lineItemField(i, err)
		}
		t.LineItems = append(t.LineItems, item)
	}
	if len(t.LineItems) > 0 {
		if t.TotalAmount, err = sumLineItems(t.LineItems); err != nil {
			return domain.Ticket{}, err
		}
	}

	if err := e.insertTicket(ctx, t, actorID); err != nil {
		if paths := up.paths(); len(paths) > 0 {
			e.logger().ErrorContext(ctx, "ticket insert failed, attachments orphaned", slog.String("ticket_id", t.ID), slog.Any("paths", paths), slog.Any("error", err))
		}
		return domain.Ticket{}, err
	}
	if t.Status == domain.StatusSubmitted {
		e.notifyAdminsSubmitted(ctx, t)
	}
	return e.Repo.GetTicket(ctx, t.ID)
}

func (e Engine) insertTicket(ctx context.Context, t domain.Ticket, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertTicket(ctx, tx, t); err != nil {
		return err
	}
	for _, li := range t.LineItems {
		if err := e.Repo.InsertLineItem(ctx, tx, li); err != nil {
			return err
		}
	}
	payload := events.EventPayload{"status": t.Status, "title": t.Title, "owner_user_id": t.OwnerUserID}
	if err := e.Events.Append(ctx, tx, events.TicketCreated, events.KindTicket, t.ID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

type uploaded struct {
	before  []string
	after   []string
	invoice *string
}

func (u uploaded) paths() []string {
	t := domain.Ticket{BeforePhotos: u.before, AfterPhotos: u.after, InvoiceFile: u.invoice}
	var out []string
	for _, p := range t.AttachmentPaths() {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// uploadAll stores every file concurrently. On failure the objects that did
// make it are removed again.
func (e Engine) uploadAll(ctx context.Context, before, after []storage.File, invoice *storage.File) (uploaded, error) {
	up := uploaded{
		before: make([]string, len(before)),
		after:  make([]string, len(after)),
	}
	var invoicePath string
	type job struct {
		folder string
		file   storage.File
		dst    *string
	}
	var jobs []job
	for i, f := range before {
		jobs = append(jobs, job{storage.FolderBefore, f, &up.before[i]})
	}
	for i, f := range after {
		jobs = append(jobs, job{storage.FolderAfter, f, &up.after[i]})
	}
	if invoice != nil {
		jobs = append(jobs, job{storage.FolderInvoices, *invoice, &invoicePath})
	}
	if len(jobs) == 0 {
		return up, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadLimit)
	for _, j := range jobs {
		g.Go(func() error {
			p, err := e.Store.Put(gctx, j.folder, j.file)
			if err != nil {
				return fmt.Errorf("upload %s: %w", j.file.Filename, err)
			}
			*j.dst = p
			return nil
		})
	}
	err := g.Wait()
	if invoicePath != "" {
		up.invoice = &invoicePath
	}
	if err != nil {
		e.deleteAttachments(ctx, "", up.paths())
		return uploaded{}, err
	}
	return up, nil
}

// deleteAttachments removes paths and only logs failures.
func (e Engine) deleteAttachments(ctx context.Context, ticketID string, paths []string) {
	if len(paths) == 0 {
		return
	}
	if err := e.Store.Delete(ctx, paths); err != nil {
		e.logger().WarnContext(ctx, "attachment delete failed", slog.String("ticket_id", ticketID), slog.Any("paths", paths), slog.Any("error", err))
	}
}

type UpdateTicketInput struct {
	Title           *string        `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description     *string        `json:"description,omitempty" validate:"omitempty,max=10000"`
	WorkStartDate   *string        `json:"work_start_date,omitempty"`
	WorkEndDate     *string        `json:"work_end_date,omitempty"`
	HourlyRate      *int64         `json:"hourly_rate,omitempty" validate:"omitempty,gte=0,lte=100000000"`
	TotalAmount     *int64         `json:"total_amount,omitempty" validate:"omitempty,gte=0,lte=1000000000000"`
	InvoiceNumber   *string        `json:"invoice_number,omitempty" validate:"omitempty,max=100"`
	AddBeforePhotos []storage.File `json:"add_before_photos,omitempty" validate:"dive"`
	AddAfterPhotos  []storage.File `json:"add_after_photos,omitempty" validate:"dive"`
	// RemovePhotos lists before or after photo paths to drop.
	RemovePhotos  []string      `json:"remove_photos,omitempty"`
	Invoice       *storage.File `json:"invoice,omitempty"`
	RemoveInvoice bool          `json:"remove_invoice,omitempty"`
	// Submit moves the ticket to submitted as part of the edit.
	Submit bool `json:"submit,omitempty"`
}

// UpdateTicket applies an edit. Replaced or removed attachments are deleted
// after the change commits.
func (e Engine) UpdateTicket(ctx context.Context, actorID, id string, in UpdateTicketInput) (domain.Ticket, error) {
	ev, err := e.evaluator(ctx, actorID, "edit ticket")
	if err != nil {
		return domain.Ticket{}, err
	}
	t, err := e.Repo.GetTicket(ctx, id)
	if err != nil {
		return domain.Ticket{}, err
	}
	if !ev.CanEdit(t) {
		return domain.Ticket{}, auth.ForbiddenError{Action: "edit ticket"}
	}
	submitting := in.Submit && t.Status != domain.StatusSubmitted
	if submitting && !ev.CanChangeStatus(t, domain.StatusSubmitted) {
		return domain.Ticket{}, auth.ForbiddenError{Action: fmt.Sprintf("change status from %s to %s", t.Status, domain.StatusSubmitted)}
	}
	if err := e.validate(in); err != nil {
		return domain.Ticket{}, err
	}
	if in.Invoice != nil && in.RemoveInvoice {
		return domain.Ticket{}, invalid("invoice", "cannot replace and remove the invoice together")
	}

	if in.Title != nil {
		t.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.WorkStartDate != nil || in.WorkEndDate != nil {
		start, end := t.WorkStartDate, t.WorkEndDate
		if in.WorkStartDate != nil {
			start = *in.WorkStartDate
		}
		if in.WorkEndDate != nil {
			end = *in.WorkEndDate
		}
		if t.WorkStartDate, t.WorkEndDate, err = normalizeWindow(start, end); err != nil {
			return domain.Ticket{}, err
		}
	}
	if in.HourlyRate != nil {
		t.HourlyRate = *in.HourlyRate
	}
	if in.TotalAmount != nil {
		if len(t.LineItems) > 0 {
			return domain.Ticket{}, invalid("total_amount", "derived from line items")
		}
		t.TotalAmount = *in.TotalAmount
	}
	if in.InvoiceNumber != nil {
		t.InvoiceNumber = in.InvoiceNumber
	}

	var removed []string
	if len(in.RemovePhotos) > 0 {
		drop := make(map[string]bool, len(in.RemovePhotos))
		for _, p := range in.RemovePhotos {
			drop[p] = true
		}
		t.BeforePhotos, removed = partition(t.BeforePhotos, drop, removed)
		t.AfterPhotos, removed = partition(t.AfterPhotos, drop, removed)
		if len(removed) != len(drop) {
			return domain.Ticket{}, invalid("remove_photos", "unknown photo path")
		}
	}
	if (in.Invoice != nil || in.RemoveInvoice) && t.InvoiceFile != nil {
		removed = append(removed, *t.InvoiceFile)
		t.InvoiceFile = nil
	}

	up, err := e.uploadAll(ctx, in.AddBeforePhotos, in.AddAfterPhotos, in.Invoice)
	if err != nil {
		return domain.Ticket{}, err
	}
	t.BeforePhotos = append(t.BeforePhotos, up.before...)
	t.AfterPhotos = append(t.AfterPhotos, up.after...)
	if up.invoice != nil {
		t.InvoiceFile = up.invoice
	}
	from := t.Status
	if submitting {
		t.Status = domain.StatusSubmitted
	}
	t.UpdatedAt = e.timestamp()

	if err := e.saveTicket(ctx, t, from, actorID); err != nil {
		if paths := up.paths(); len(paths) > 0 {
			e.logger().ErrorContext(ctx, "ticket update failed, attachments orphaned", slog.String("ticket_id", t.ID), slog.Any("paths", paths), slog.Any("error", err))
		}
		return domain.Ticket{}, err
	}
	e.deleteAttachments(ctx, t.ID, removed)
	if submitting {
		e.notifyAdminsSubmitted(ctx, t)
	}
	return e.Repo.GetTicket(ctx, t.ID)
}

func (e Engine) saveTicket(ctx context.Context, t domain.Ticket, from domain.Status, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateTicket(ctx, tx, t); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.TicketUpdated, events.KindTicket, t.ID, actorID, events.EventPayload{"title": t.Title}); err != nil {
		return err
	}
	if from != t.Status {
		payload := events.EventPayload{"from": from, "to": t.Status}
		if err := e.Events.Append(ctx, tx, events.TicketStatusChanged, events.KindTicket, t.ID, actorID, payload); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func partition(paths []string, drop map[string]bool, removed []string) ([]string, []string) {
	kept := make([]string, 0, len(paths))
	for _, p := range paths {
		if drop[p] {
			removed = append(removed, p)
			continue
		}
		kept = append(kept, p)
	}
	return kept, removed
}

// DeleteTicket removes the ticket's attachments best effort, then deletes the
// record regardless of how that went.
func (e Engine) DeleteTicket(ctx context.Context, actorID, id string) error {
	ev, err := e.evaluator(ctx, actorID, "delete ticket")
	if err != nil {
		return err
	}
	t, err := e.Repo.GetTicket(ctx, id)
	if err != nil {
		return err
	}
	if !ev.CanDelete(t) {
		return auth.ForbiddenError{Action: fmt.Sprintf("delete %s ticket", t.Status)}
	}
	paths := t.AttachmentPaths()
	e.deleteAttachments(ctx, t.ID, paths)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteTicket(ctx, tx, t.ID); err != nil {
		return err
	}
	payload := events.EventPayload{"status": t.Status, "title": t.Title, "attachments": len(paths)}
	if err := e.Events.Append(ctx, tx, events.TicketDeleted, events.KindTicket, t.ID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func (e Engine) GetTicket(ctx context.Context, actorID, id string) (domain.Ticket, error) {
	ev, err := e.evaluator(ctx, actorID, "view ticket")
	if err != nil {
		return domain.Ticket{}, err
	}
	t, err := e.Repo.GetTicket(ctx, id)
	if err != nil {
		return domain.Ticket{}, err
	}
	if !ev.CanView(t) {
		return domain.Ticket{}, auth.ForbiddenError{Action: "view ticket"}
	}
	return t, nil
}

// ListTickets returns every ticket for actors who can view all, and only
// their own otherwise.
func (e Engine) ListTickets(ctx context.Context, actorID string, f repo.TicketFilters) ([]domain.Ticket, error) {
	ev, err := e.evaluator(ctx, actorID, "list tickets")
	if err != nil {
		return nil, err
	}
	switch ev.ViewScope() {
	case permission.ScopeAll:
	case permission.ScopeOwn:
		f.OwnerUserID = actorID
	default:
		return nil, auth.ForbiddenError{Action: "list tickets"}
	}
	return e.Repo.ListTickets(ctx, f)
}

// TicketStats counts tickets by status with the same scope as ListTickets.
func (e Engine) TicketStats(ctx context.Context, actorID string) (map[domain.Status]int, error) {
	ev, err := e.evaluator(ctx, actorID, "view ticket stats")
	if err != nil {
		return nil, err
	}
	switch ev.ViewScope() {
	case permission.ScopeAll:
		return e.Repo.CountTicketsByStatus(ctx, "")
	case permission.ScopeOwn:
		return e.Repo.CountTicketsByStatus(ctx, actorID)
	default:
		return nil, auth.ForbiddenError{Action: "view ticket stats"}
	}
}

func (e Engine) TicketCapabilities(ctx context.Context, actorID, id string) (permission.Capabilities, error) {
	ev, err := e.evaluator(ctx, actorID, "view ticket")
	if err != nil {
		return permission.Capabilities{}, err
	}
	t, err := e.Repo.GetTicket(ctx, id)
	if err != nil {
		return permission.Capabilities{}, err
	}
	if !ev.CanView(t) {
		return permission.Capabilities{}, auth.ForbiddenError{Action: "view ticket"}
	}
	return ev.Capabilities(t), nil
}

// TicketEvents returns the history of a ticket newest first.
func (e Engine) TicketEvents(ctx context.Context, actorID, id string, before int64, limit int) ([]domain.Event, error) {
	if _, err := e.GetTicket(ctx, actorID, id); err != nil {
		return nil, err
	}
	return e.Repo.LatestEvents(ctx, repo.EventFilters{EntityKind: events.KindTicket, EntityID: id, Before: before, Limit: limit})
}

func (e Engine) AddLineItem(ctx context.Context, actorID, ticketID string, in LineItemInput) (domain.Ticket, error) {
	ev, err := e.evaluator(ctx, actorID, "edit ticket")
	if err != nil {
		return domain.Ticket{}, err
	}
	t, err := e.Repo.GetTicket(ctx, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if !ev.CanEdit(t) {
		return domain.Ticket{}, auth.ForbiddenError{Action: "edit ticket"}
	}
	if err := e.validate(in); err != nil {
		return domain.Ticket{}, err
	}
	now := e.timestamp()
	li, err := newLineItem(t.ID, in, now)
	if err != nil {
		return domain.Ticket{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertLineItem(ctx, tx, li); err != nil {
		return domain.Ticket{}, err
	}
	if err := e.retotal(ctx, tx, t.ID, now); err != nil {
		return domain.Ticket{}, err
	}
	payload := events.EventPayload{"line_item_id": li.ID, "total_amount": li.TotalAmount}
	if err := e.Events.Append(ctx, tx, events.LineItemAdded, events.KindTicket, t.ID, actorID, payload); err != nil {
		return domain.Ticket{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Ticket{}, err
	}
	return e.Repo.GetTicket(ctx, t.ID)
}

func (e Engine) RemoveLineItem(ctx context.Context, actorID, ticketID, lineItemID string) (domain.Ticket, error) {
	ev, err := e.evaluator(ctx, actorID, "edit ticket")
	if err != nil {
		return domain.Ticket{}, err
	}
	t, err := e.Repo.GetTicket(ctx, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}
	if !ev.CanEdit(t) {
		return domain.Ticket{}, auth.ForbiddenError{Action: "edit ticket"}
	}
	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteLineItem(ctx, tx, t.ID, lineItemID); err != nil {
		return domain.Ticket{}, err
	}
	if err := e.retotal(ctx, tx, t.ID, now); err != nil {
		return domain.Ticket{}, err
	}
	if err := e.Events.Append(ctx, tx, events.LineItemRemoved, events.KindTicket, t.ID, actorID, events.EventPayload{"line_item_id": lineItemID}); err != nil {
		return domain.Ticket{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Ticket{}, err
	}
	return e.Repo.GetTicket(ctx, t.ID)
}

// retotal re-reads the ticket inside tx so a concurrent edit between the
// permission check and the write is not overwritten.
func (e Engine) retotal(ctx context.Context, tx *sql.Tx, id, now string) error {
	t, err := e.Repo.GetTicketTx(ctx, tx, id)
	if err != nil {
		return err
	}
	total, err := e.Repo.SumLineItems(ctx, tx, id)
	if err != nil {
		return err
	}
	if total > maxTotalAmount {
		return invalid("total_amount", "sum of line items out of range")
	}
	t.TotalAmount = total
	t.UpdatedAt = now
	return e.Repo.UpdateTicket(ctx, tx, t)
}

func newLineItem(ticketID string, in LineItemInput, now string) (domain.LineItem, error) {
	total, err := lineTotal(in.Hours, in.HourlyRate)
	if err != nil {
		return domain.LineItem{}, err
	}
	return domain.LineItem{
		ID:          uuid.NewString(),
		TicketID:    ticketID,
		Description: strings.TrimSpace(in.Description),
		Hours:       in.Hours,
		HourlyRate:  in.HourlyRate,
		TotalAmount: total,
		CreatedAt:   now,
	}, nil
}

// lineTotal is round(hours * rate) in cents. It refuses products that do not
// fit the total cap, so callers that skipped validation cannot overflow.
func lineTotal(hours float64, rate int64) (int64, error) {
	if rate < 0 || rate > maxHourlyRate {
		return 0, invalid("hourly_rate", "out of range")
	}
	v := math.Round(hours * float64(rate))
	if math.IsNaN(v) || v < 0 || v > maxTotalAmount {
		return 0, invalid("total_amount", "hours * hourly_rate out of range")
	}
	return int64(v), nil
}

func sumLineItems(items []domain.LineItem) (int64, error) {
	var total int64
	for _, li := range items {
		if li.TotalAmount > maxTotalAmount-total {
			return 0, invalid("total_amount", "sum of line items out of range")
		}
		total += li.TotalAmount
	}
	return total, nil
}

// lineItemField prefixes validation fields with the line item position.
func lineItemField(i int, err error) error {
	var ve ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	fields := make(map[string]string, len(ve.Fields))
	for k, v := range ve.Fields {
		fields[fmt.Sprintf("line_items[%d].%s", i, k)] = v
	}
	return ValidationError{Message: ve.Message, Fields: fields}
}

// IsNotFound reports whether err means the target does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, repo.ErrNotFound)
}
