package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

var subjects = map[Type]string{
	TypeStatusUpdate: "Ticket Status Update - %s",
	TypeAssignment:   "Ticket Assigned - %s",
	TypeCompletion:   "Service Completed - %s",
}

var templates = template.Must(template.New("notify").Parse(`
{{define "status_update"}}<h1>Ticket Status Update</h1>
<p>Dear {{.CustomerName}},</p>
<p>Your service ticket has been updated:</p>
<ul>
  <li><strong>Ticket:</strong> {{.TicketTitle}}</li>
  <li><strong>New Status:</strong> {{.Status}}</li>
  <li><strong>Ticket ID:</strong> {{.TicketID}}</li>
</ul>
<p>Thank you for choosing our services!</p>
{{end}}
{{define "assignment"}}<h1>New Ticket Assignment</h1>
<p>Dear Team Member,</p>
<p>A new ticket has been assigned to you:</p>
<ul>
  <li><strong>Ticket:</strong> {{.TicketTitle}}</li>
  <li><strong>Customer:</strong> {{.CustomerName}}</li>
  <li><strong>Status:</strong> {{.Status}}</li>
  <li><strong>Ticket ID:</strong> {{.TicketID}}</li>
</ul>
<p>Please log in to the system to view the full details.</p>
{{end}}
{{define "completion"}}<h1>Service Completed</h1>
<p>Dear {{.CustomerName}},</p>
<p>Great news! Your service ticket has been completed:</p>
<ul>
  <li><strong>Service:</strong> {{.TicketTitle}}</li>
  {{with .AssignedTo}}<li><strong>Completed by:</strong> {{.}}</li>{{end}}
  <li><strong>Ticket ID:</strong> {{.TicketID}}</li>
</ul>
<p>Thank you for choosing our services. We hope you're satisfied with the work!</p>
{{end}}`))

// Render builds the subject and HTML body for n. From is left empty.
func Render(n Notification) (Message, error) {
	subject, ok := subjects[n.Type]
	if !ok {
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, n.Type)
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, string(n.Type), n); err != nil {
		return Message{}, fmt.Errorf("render %s: %w", n.Type, err)
	}
	return Message{
		To:      n.To,
		Subject: fmt.Sprintf(subject, n.TicketTitle),
		HTML:    buf.String(),
	}, nil
}
