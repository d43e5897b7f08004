package domain

// Ticket is a service report owned by the user who created it.
// Monetary fields are in cents.
type Ticket struct {
	ID            string     `json:"id"`
	OwnerUserID   string     `json:"owner_user_id"`
	Status        Status     `json:"status" enum:"draft,submitted,additional_info_requested,approved_not_paid,approved_paid,declined"`
	Title         string     `json:"title"`
	Description   string     `json:"description,omitempty"`
	WorkStartDate string     `json:"work_start_date" format:"date-time"`
	WorkEndDate   string     `json:"work_end_date" format:"date-time"`
	BeforePhotos  []string   `json:"before_photos"`
	AfterPhotos   []string   `json:"after_photos"`
	InvoiceFile   *string    `json:"invoice_file,omitempty"`
	HourlyRate    int64      `json:"hourly_rate"`
	TotalAmount   int64      `json:"total_amount"`
	InvoiceNumber *string    `json:"invoice_number,omitempty"`
	AdminNotes    *string    `json:"admin_notes,omitempty"`
	LineItems     []LineItem `json:"line_items,omitempty"`
	CreatedAt     string     `json:"created_at" format:"date-time"`
	UpdatedAt     string     `json:"updated_at" format:"date-time"`
}

// AttachmentPaths lists every blob path the ticket references.
func (t Ticket) AttachmentPaths() []string {
	paths := make([]string, 0, len(t.BeforePhotos)+len(t.AfterPhotos)+1)
	paths = append(paths, t.BeforePhotos...)
	paths = append(paths, t.AfterPhotos...)
	if t.InvoiceFile != nil && *t.InvoiceFile != "" {
		paths = append(paths, *t.InvoiceFile)
	}
	return paths
}

type LineItem struct {
	ID          string  `json:"id"`
	TicketID    string  `json:"ticket_id"`
	Description string  `json:"description"`
	Hours       float64 `json:"hours"`
	HourlyRate  int64   `json:"hourly_rate"`
	TotalAmount int64   `json:"total_amount"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
}

type Profile struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	CompanyName string `json:"company_name,omitempty"`
	UpdatedAt   string `json:"updated_at" format:"date-time"`
}

// DisplayName is the name used when addressing the user.
func (p Profile) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.CompanyName != "":
		return p.CompanyName
	default:
		return "Customer"
	}
}

type UserRole struct {
	UserID    string `json:"user_id"`
	Role      Role   `json:"role" enum:"admin,user"`
	UpdatedAt string `json:"updated_at,omitempty" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
