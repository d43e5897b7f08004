package server

import (
	"encoding/json"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/engine"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/permission"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/storage"
)

// Request payloads

// AttachmentRequest carries one file. Data is base64 in JSON.
type AttachmentRequest struct {
	Filename    string `json:"filename" maxLength:"255"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

type LineItemRequest struct {
	Description string  `json:"description"`
	Hours       float64 `json:"hours" exclusiveMinimum:"0" maximum:"10000"`
	HourlyRate  int64   `json:"hourly_rate" minimum:"0" maximum:"100000000" doc:"Rate in cents"`
}

type CreateTicketRequest struct {
	Title         string              `json:"title"`
	Description   string              `json:"description,omitempty"`
	WorkStartDate string              `json:"work_start_date" format:"date-time"`
	WorkEndDate   string              `json:"work_end_date" format:"date-time"`
	HourlyRate    int64               `json:"hourly_rate,omitempty" minimum:"0" maximum:"100000000" doc:"Rate in cents"`
	TotalAmount   int64               `json:"total_amount,omitempty" minimum:"0" maximum:"1000000000000" doc:"Ignored when line items are given"`
	InvoiceNumber string              `json:"invoice_number,omitempty"`
	BeforePhotos  []AttachmentRequest `json:"before_photos,omitempty"`
	AfterPhotos   []AttachmentRequest `json:"after_photos,omitempty"`
	Invoice       *AttachmentRequest  `json:"invoice,omitempty"`
	LineItems     []LineItemRequest   `json:"line_items,omitempty"`
	Submit        bool                `json:"submit,omitempty" doc:"Create directly in submitted"`
}

type UpdateTicketRequest struct {
	Title           *string             `json:"title,omitempty"`
	Description     *string             `json:"description,omitempty"`
	WorkStartDate   *string             `json:"work_start_date,omitempty" format:"date-time"`
	WorkEndDate     *string             `json:"work_end_date,omitempty" format:"date-time"`
	HourlyRate      *int64              `json:"hourly_rate,omitempty" minimum:"0" maximum:"100000000"`
	TotalAmount     *int64              `json:"total_amount,omitempty" minimum:"0" maximum:"1000000000000"`
	InvoiceNumber   *string             `json:"invoice_number,omitempty"`
	AddBeforePhotos []AttachmentRequest `json:"add_before_photos,omitempty"`
	AddAfterPhotos  []AttachmentRequest `json:"add_after_photos,omitempty"`
	RemovePhotos    []string            `json:"remove_photos,omitempty"`
	Invoice         *AttachmentRequest  `json:"invoice,omitempty"`
	RemoveInvoice   bool                `json:"remove_invoice,omitempty"`
	Submit          bool                `json:"submit,omitempty"`
}

type ChangeStatusRequest struct {
	Status     string  `json:"status" enum:"draft,submitted,additional_info_requested,approved_not_paid,approved_paid,declined"`
	AdminNotes *string `json:"admin_notes,omitempty" doc:"Admins only"`
}

type SetRoleRequest struct {
	Role string `json:"role" enum:"admin,user"`
}

type ProfileRequest struct {
	Email       string `json:"email,omitempty" format:"email"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

type RolePermissionsRequest struct {
	Flags map[string]bool `json:"flags" doc:"Every flag name must be present"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

// Responses

type TicketResponse struct {
	ID            string            `json:"id"`
	OwnerUserID   string            `json:"owner_user_id"`
	Status        string            `json:"status" enum:"draft,submitted,additional_info_requested,approved_not_paid,approved_paid,declined"`
	StatusLabel   string            `json:"status_label"`
	Title         string            `json:"title"`
	Description   string            `json:"description,omitempty"`
	WorkStartDate string            `json:"work_start_date" format:"date-time"`
	WorkEndDate   string            `json:"work_end_date" format:"date-time"`
	BeforePhotos  []AttachmentLink  `json:"before_photos"`
	AfterPhotos   []AttachmentLink  `json:"after_photos"`
	InvoiceFile   *AttachmentLink   `json:"invoice_file,omitempty"`
	HourlyRate    int64             `json:"hourly_rate"`
	TotalAmount   int64             `json:"total_amount"`
	InvoiceNumber *string           `json:"invoice_number,omitempty"`
	AdminNotes    *string           `json:"admin_notes,omitempty"`
	LineItems     []domain.LineItem `json:"line_items"`
	CreatedAt     string            `json:"created_at" format:"date-time"`
	UpdatedAt     string            `json:"updated_at" format:"date-time"`
}

type AttachmentLink struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type StatsResponse struct {
	Total  int            `json:"total"`
	Counts map[string]int `json:"counts"`
}

type WhoAmIResponse struct {
	UserID      string          `json:"user_id"`
	Role        string          `json:"role" enum:"admin,user"`
	Permissions map[string]bool `json:"permissions"`
	Profile     *domain.Profile `json:"profile,omitempty"`
}

type RolePermissionsResponse struct {
	Role  string          `json:"role" enum:"admin,user"`
	Flags map[string]bool `json:"flags"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type paginatedTickets struct {
	Items      []TicketResponse `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func attachmentFile(a AttachmentRequest) storage.File {
	return storage.File{Filename: a.Filename, ContentType: a.ContentType, Data: a.Data}
}

func attachmentFiles(in []AttachmentRequest) []storage.File {
	if len(in) == 0 {
		return nil
	}
	out := make([]storage.File, 0, len(in))
	for _, a := range in {
		out = append(out, attachmentFile(a))
	}
	return out
}

func optionalAttachment(a *AttachmentRequest) *storage.File {
	if a == nil {
		return nil
	}
	f := attachmentFile(*a)
	return &f
}

func lineItemInputs(in []LineItemRequest) []engine.LineItemInput {
	out := make([]engine.LineItemInput, 0, len(in))
	for _, li := range in {
		out = append(out, engine.LineItemInput(li))
	}
	return out
}

func (r CreateTicketRequest) input() engine.CreateTicketInput {
	return engine.CreateTicketInput{
		Title:         r.Title,
		Description:   r.Description,
		WorkStartDate: r.WorkStartDate,
		WorkEndDate:   r.WorkEndDate,
		HourlyRate:    r.HourlyRate,
		TotalAmount:   r.TotalAmount,
		InvoiceNumber: r.InvoiceNumber,
		BeforePhotos:  attachmentFiles(r.BeforePhotos),
		AfterPhotos:   attachmentFiles(r.AfterPhotos),
		Invoice:       optionalAttachment(r.Invoice),
		LineItems:     lineItemInputs(r.LineItems),
		Submit:        r.Submit,
	}
}

func (r UpdateTicketRequest) input() engine.UpdateTicketInput {
	return engine.UpdateTicketInput{
		Title:           r.Title,
		Description:     r.Description,
		WorkStartDate:   r.WorkStartDate,
		WorkEndDate:     r.WorkEndDate,
		HourlyRate:      r.HourlyRate,
		TotalAmount:     r.TotalAmount,
		InvoiceNumber:   r.InvoiceNumber,
		AddBeforePhotos: attachmentFiles(r.AddBeforePhotos),
		AddAfterPhotos:  attachmentFiles(r.AddAfterPhotos),
		RemovePhotos:    r.RemovePhotos,
		Invoice:         optionalAttachment(r.Invoice),
		RemoveInvoice:   r.RemoveInvoice,
		Submit:          r.Submit,
	}
}

func ticketResponse(t domain.Ticket, store storage.Store) TicketResponse {
	res := TicketResponse{
		ID:            t.ID,
		OwnerUserID:   t.OwnerUserID,
		Status:        string(t.Status),
		StatusLabel:   t.Status.Label(),
		Title:         t.Title,
		Description:   t.Description,
		WorkStartDate: t.WorkStartDate,
		WorkEndDate:   t.WorkEndDate,
		BeforePhotos:  links(t.BeforePhotos, store),
		AfterPhotos:   links(t.AfterPhotos, store),
		HourlyRate:    t.HourlyRate,
		TotalAmount:   t.TotalAmount,
		InvoiceNumber: t.InvoiceNumber,
		AdminNotes:    t.AdminNotes,
		LineItems:     nonNilSlice(t.LineItems),
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
	if t.InvoiceFile != nil && *t.InvoiceFile != "" {
		res.InvoiceFile = &AttachmentLink{Path: *t.InvoiceFile, URL: store.PublicURL(*t.InvoiceFile)}
	}
	return res
}

func links(paths []string, store storage.Store) []AttachmentLink {
	out := make([]AttachmentLink, 0, len(paths))
	for _, p := range paths {
		out = append(out, AttachmentLink{Path: p, URL: store.PublicURL(p)})
	}
	return out
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func statsResponse(counts map[domain.Status]int) StatsResponse {
	res := StatsResponse{Counts: make(map[string]int, len(counts))}
	for _, s := range domain.Statuses {
		res.Counts[string(s)] = counts[s]
		res.Total += counts[s]
	}
	return res
}

func rolePermissionsResponse(m permission.Matrix) RolePermissionsResponse {
	return RolePermissionsResponse{Role: string(m.Role), Flags: m.Flags()}
}

// JSON helpers

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
