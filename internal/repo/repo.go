package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const ticketColumns = `id,user_id,status,title,description,work_start_date,work_end_date,before_photos_json,after_photos_json,invoice_file,hourly_rate,total_amount,invoice_number,admin_notes,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(row rowScanner) (domain.Ticket, error) {
	var t domain.Ticket
	var description, invoiceFile, invoiceNumber, adminNotes sql.NullString
	var before, after string
	err := row.Scan(&t.ID, &t.OwnerUserID, &t.Status, &t.Title, &description, &t.WorkStartDate, &t.WorkEndDate,
		&before, &after, &invoiceFile, &t.HourlyRate, &t.TotalAmount, &invoiceNumber, &adminNotes, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if description.Valid {
		t.Description = description.String
	}
	if invoiceFile.Valid {
		t.InvoiceFile = &invoiceFile.String
	}
	if invoiceNumber.Valid {
		t.InvoiceNumber = &invoiceNumber.String
	}
	if adminNotes.Valid {
		t.AdminNotes = &adminNotes.String
	}
	if t.BeforePhotos, err = unmarshalPaths(before); err != nil {
		return t, fmt.Errorf("ticket %s before_photos: %w", t.ID, err)
	}
	if t.AfterPhotos, err = unmarshalPaths(after); err != nil {
		return t, fmt.Errorf("ticket %s after_photos: %w", t.ID, err)
	}
	return t, nil
}

func marshalPaths(paths []string) (string, error) {
	if paths == nil {
		paths = []string{}
	}
	b, err := json.Marshal(paths)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalPaths(raw string) ([]string, error) {
	out := []string{}
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r Repo) InsertTicket(ctx context.Context, tx *sql.Tx, t domain.Ticket) error {
	before, err := marshalPaths(t.BeforePhotos)
	if err != nil {
		return err
	}
	after, err := marshalPaths(t.AfterPhotos)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO service_tickets(`+ticketColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.OwnerUserID, t.Status, t.Title, nullable(t.Description), t.WorkStartDate, t.WorkEndDate,
		before, after, nullableStringPtr(t.InvoiceFile), t.HourlyRate, t.TotalAmount,
		nullableStringPtr(t.InvoiceNumber), nullableStringPtr(t.AdminNotes), t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// UpdateTicket rewrites every mutable column of t. Ownership and created_at
// never change.
func (r Repo) UpdateTicket(ctx context.Context, tx *sql.Tx, t domain.Ticket) error {
	before, err := marshalPaths(t.BeforePhotos)
	if err != nil {
		return err
	}
	after, err := marshalPaths(t.AfterPhotos)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `UPDATE service_tickets SET status=?, title=?, description=?, work_start_date=?, work_end_date=?,
before_photos_json=?, after_photos_json=?, invoice_file=?, hourly_rate=?, total_amount=?, invoice_number=?, admin_notes=?, updated_at=? WHERE id=?`,
		t.Status, t.Title, nullable(t.Description), t.WorkStartDate, t.WorkEndDate,
		before, after, nullableStringPtr(t.InvoiceFile), t.HourlyRate, t.TotalAmount,
		nullableStringPtr(t.InvoiceNumber), nullableStringPtr(t.AdminNotes), t.UpdatedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateTicketStatus(ctx context.Context, tx *sql.Tx, id string, status domain.Status, adminNotes *string, updatedAt string) error {
	var (
		res sql.Result
		err error
	)
	if adminNotes != nil {
		res, err = tx.ExecContext(ctx, `UPDATE service_tickets SET status=?, admin_notes=?, updated_at=? WHERE id=?`,
			status, nullableStringPtr(adminNotes), updatedAt, id)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE service_tickets SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	}
	if err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTicket(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM service_tickets WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetTicket loads a ticket with its line items.
func (r Repo) GetTicket(ctx context.Context, id string) (domain.Ticket, error) {
	return getTicket(ctx, r.DB, id)
}

// GetTicketTx is GetTicket inside an open transaction.
func (r Repo) GetTicketTx(ctx context.Context, tx *sql.Tx, id string) (domain.Ticket, error) {
	return getTicket(ctx, tx, id)
}

func getTicket(ctx context.Context, q querier, id string) (domain.Ticket, error) {
	t, err := scanTicket(q.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM service_tickets WHERE id=?`, id))
	if err != nil {
		return t, err
	}
	items, err := listLineItems(ctx, q, id)
	if err != nil {
		return t, err
	}
	t.LineItems = items
	return t, nil
}

type TicketFilters struct {
	OwnerUserID     string
	Status          domain.Status
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListTickets returns tickets newest first without line items.
func (r Repo) ListTickets(ctx context.Context, f TicketFilters) ([]domain.Ticket, error) {
	var clauses []string
	var args []any
	if f.OwnerUserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.OwnerUserID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + ticketColumns + ` FROM service_tickets ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// CountTicketsByStatus counts tickets per status, optionally for one owner.
// Every status is present in the result.
func (r Repo) CountTicketsByStatus(ctx context.Context, ownerUserID string) (map[domain.Status]int, error) {
	query := `SELECT status, count(*) FROM service_tickets GROUP BY status`
	var args []any
	if ownerUserID != "" {
		query = `SELECT status, count(*) FROM service_tickets WHERE user_id=? GROUP BY status`
		args = append(args, ownerUserID)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := make(map[domain.Status]int, domain.NumStatuses)
	for _, s := range domain.Statuses {
		res[s] = 0
	}
	for rows.Next() {
		var status domain.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func (r Repo) InsertLineItem(ctx context.Context, tx *sql.Tx, li domain.LineItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO line_items(id,ticket_id,description,hours,hourly_rate,total_amount,created_at) VALUES (?,?,?,?,?,?,?)`,
		li.ID, li.TicketID, li.Description, li.Hours, li.HourlyRate, li.TotalAmount, li.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert line item: %w", err)
	}
	return nil
}

func (r Repo) DeleteLineItem(ctx context.Context, tx *sql.Tx, ticketID, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM line_items WHERE id=? AND ticket_id=?`, id, ticketID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SumLineItems returns the total of all line items of a ticket.
func (r Repo) SumLineItems(ctx context.Context, tx *sql.Tx, ticketID string) (int64, error) {
	var total int64
	err := tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_amount),0) FROM line_items WHERE ticket_id=?`, ticketID).Scan(&total)
	return total, err
}

func (r Repo) ListLineItems(ctx context.Context, ticketID string) ([]domain.LineItem, error) {
	return listLineItems(ctx, r.DB, ticketID)
}

func listLineItems(ctx context.Context, q querier, ticketID string) ([]domain.LineItem, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,ticket_id,description,hours,hourly_rate,total_amount,created_at FROM line_items WHERE ticket_id=? ORDER BY created_at ASC, id ASC`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LineItem
	for rows.Next() {
		var li domain.LineItem
		if err := rows.Scan(&li.ID, &li.TicketID, &li.Description, &li.Hours, &li.HourlyRate, &li.TotalAmount, &li.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, li)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
