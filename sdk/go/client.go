package fshsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal service hub HTTP API client.
type Client struct {
	BaseURL     string
	BearerToken string
	// UserID is sent as X-User-Id when no bearer token is set. Servers
	// accept it only with the legacy header enabled.
	UserID     string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Attachment struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type,omitempty"`
	Data        []byte `json:"data"`
}

type AttachmentLink struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

type LineItem struct {
	ID          string  `json:"id"`
	TicketID    string  `json:"ticket_id"`
	Description string  `json:"description"`
	Hours       float64 `json:"hours"`
	HourlyRate  int64   `json:"hourly_rate"`
	TotalAmount int64   `json:"total_amount"`
	CreatedAt   string  `json:"created_at"`
}

// NewLineItem is the request shape for a line item. The server computes the
// total as hours times rate.
type NewLineItem struct {
	Description string  `json:"description"`
	Hours       float64 `json:"hours"`
	HourlyRate  int64   `json:"hourly_rate"`
}

// Ticket represents the API ticket model. Amounts are in cents.
type Ticket struct {
	ID            string           `json:"id"`
	OwnerUserID   string           `json:"owner_user_id"`
	Status        string           `json:"status"`
	StatusLabel   string           `json:"status_label"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	WorkStartDate string           `json:"work_start_date"`
	WorkEndDate   string           `json:"work_end_date"`
	BeforePhotos  []AttachmentLink `json:"before_photos"`
	AfterPhotos   []AttachmentLink `json:"after_photos"`
	InvoiceFile   *AttachmentLink  `json:"invoice_file"`
	HourlyRate    int64            `json:"hourly_rate"`
	TotalAmount   int64            `json:"total_amount"`
	InvoiceNumber *string          `json:"invoice_number"`
	AdminNotes    *string          `json:"admin_notes"`
	LineItems     []LineItem       `json:"line_items"`
	CreatedAt     string           `json:"created_at"`
	UpdatedAt     string           `json:"updated_at"`
}

type CreateTicket struct {
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	WorkStartDate string        `json:"work_start_date"`
	WorkEndDate   string        `json:"work_end_date"`
	HourlyRate    int64         `json:"hourly_rate,omitempty"`
	TotalAmount   int64         `json:"total_amount,omitempty"`
	InvoiceNumber string        `json:"invoice_number,omitempty"`
	BeforePhotos  []Attachment  `json:"before_photos,omitempty"`
	AfterPhotos   []Attachment  `json:"after_photos,omitempty"`
	Invoice       *Attachment   `json:"invoice,omitempty"`
	LineItems     []NewLineItem `json:"line_items,omitempty"`
	Submit        bool          `json:"submit,omitempty"`
}

// UpdateTicket is a partial edit. Nil fields are left unchanged.
type UpdateTicket struct {
	Title           *string      `json:"title,omitempty"`
	Description     *string      `json:"description,omitempty"`
	WorkStartDate   *string      `json:"work_start_date,omitempty"`
	WorkEndDate     *string      `json:"work_end_date,omitempty"`
	HourlyRate      *int64       `json:"hourly_rate,omitempty"`
	TotalAmount     *int64       `json:"total_amount,omitempty"`
	InvoiceNumber   *string      `json:"invoice_number,omitempty"`
	AddBeforePhotos []Attachment `json:"add_before_photos,omitempty"`
	AddAfterPhotos  []Attachment `json:"add_after_photos,omitempty"`
	RemovePhotos    []string     `json:"remove_photos,omitempty"`
	Invoice         *Attachment  `json:"invoice,omitempty"`
	RemoveInvoice   bool         `json:"remove_invoice,omitempty"`
	Submit          bool         `json:"submit,omitempty"`
}

type Capabilities struct {
	CanView     bool     `json:"can_view"`
	CanEdit     bool     `json:"can_edit"`
	CanDelete   bool     `json:"can_delete"`
	Transitions []string `json:"transitions"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmI struct {
	UserID      string          `json:"user_id"`
	Role        string          `json:"role"`
	Permissions map[string]bool `json:"permissions"`
}

type UserRole struct {
	UserID    string `json:"user_id"`
	Role      string `json:"role"`
	UpdatedAt string `json:"updated_at"`
}

type RolePermissions struct {
	Role  string          `json:"role"`
	Flags map[string]bool `json:"flags"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedTickets wraps list responses with cursors.
type PaginatedTickets struct {
	Items      []Ticket `json:"items"`
	NextCursor string   `json:"next_cursor"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// DevLogin exchanges a user id for a token and stores it on the client.
// Servers expose this only in development.
func (c *Client) DevLogin(ctx context.Context, userID string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", map[string]string{"user_id": userID}, &resp); err != nil {
		return "", err
	}
	c.BearerToken = resp.Token
	return resp.Token, nil
}

func (c *Client) Me(ctx context.Context) (WhoAmI, error) {
	var resp WhoAmI
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// CreateTicket creates a ticket owned by the caller.
func (c *Client) CreateTicket(ctx context.Context, in CreateTicket) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodPost, "tickets", in, &resp)
	return resp, err
}

// Tickets returns one page of visible tickets, newest first.
func (c *Client) Tickets(ctx context.Context, status string, limit int, cursor string) (PaginatedTickets, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedTickets
	err := c.do(ctx, http.MethodGet, withQuery("tickets", q), nil, &resp)
	return resp, err
}

func (c *Client) Ticket(ctx context.Context, id string) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodGet, ticketPath(id), nil, &resp)
	return resp, err
}

func (c *Client) UpdateTicket(ctx context.Context, id string, in UpdateTicket) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodPatch, ticketPath(id), in, &resp)
	return resp, err
}

func (c *Client) DeleteTicket(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, ticketPath(id), nil, nil)
}

// ChangeStatus moves a ticket. notes is stored only for admins.
func (c *Client) ChangeStatus(ctx context.Context, id, status string, notes *string) (Ticket, error) {
	body := map[string]any{"status": status}
	if notes != nil {
		body["admin_notes"] = *notes
	}
	var resp Ticket
	err := c.do(ctx, http.MethodPost, ticketPath(id)+"/status", body, &resp)
	return resp, err
}

func (c *Client) Capabilities(ctx context.Context, id string) (Capabilities, error) {
	var resp Capabilities
	err := c.do(ctx, http.MethodGet, ticketPath(id)+"/capabilities", nil, &resp)
	return resp, err
}

func (c *Client) AddLineItem(ctx context.Context, ticketID string, li NewLineItem) (Ticket, error) {
	var resp Ticket
	err := c.do(ctx, http.MethodPost, ticketPath(ticketID)+"/line-items", li, &resp)
	return resp, err
}

func (c *Client) RemoveLineItem(ctx context.Context, ticketID, lineItemID string) (Ticket, error) {
	var resp Ticket
	endpoint := fmt.Sprintf("%s/line-items/%s", ticketPath(ticketID), url.PathEscape(lineItemID))
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp, err
}

// TicketEvents returns a page of a ticket's history, newest first.
func (c *Client) TicketEvents(ctx context.Context, id string, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery(ticketPath(id)+"/events", q), nil, &resp)
	return resp, err
}

// SetRole assigns a role. Admin only.
func (c *Client) SetRole(ctx context.Context, userID, role string) (UserRole, error) {
	var resp UserRole
	endpoint := fmt.Sprintf("users/%s/role", url.PathEscape(userID))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]string{"role": role}, &resp)
	return resp, err
}

func (c *Client) RolePermissions(ctx context.Context, role string) (RolePermissions, error) {
	var resp RolePermissions
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("roles/%s/permissions", url.PathEscape(role)), nil, &resp)
	return resp, err
}

// SetRolePermissions replaces every flag of a role. Admin only.
func (c *Client) SetRolePermissions(ctx context.Context, role string, flags map[string]bool) (RolePermissions, error) {
	var resp RolePermissions
	endpoint := fmt.Sprintf("roles/%s/permissions", url.PathEscape(role))
	err := c.do(ctx, http.MethodPut, endpoint, map[string]any{"flags": flags}, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.UserID != "":
		req.Header.Set("X-User-Id", c.UserID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &envelope) == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}

func ticketPath(id string) string {
	return "tickets/" + url.PathEscape(id)
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
