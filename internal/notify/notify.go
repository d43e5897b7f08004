// Package notify renders ticket emails and hands them to a mailer, either
// inline or through an asynq queue.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

type Type string

const (
	TypeStatusUpdate Type = "status_update"
	TypeAssignment   Type = "assignment"
	TypeCompletion   Type = "completion"
)

var ErrUnknownType = errors.New("unknown notification type")

// Notification is the payload handed to a Dispatcher.
type Notification struct {
	Type         Type   `json:"type"`
	To           string `json:"to"`
	TicketID     string `json:"ticket_id"`
	TicketTitle  string `json:"ticket_title"`
	CustomerName string `json:"customer_name"`
	Status       string `json:"status"`
	AssignedTo   string `json:"assigned_to,omitempty"`
}

func (n Notification) validate() error {
	switch n.Type {
	case TypeStatusUpdate, TypeAssignment, TypeCompletion:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, n.Type)
	}
	if n.To == "" {
		return errors.New("notification recipient required")
	}
	return nil
}

// Dispatcher accepts notifications for delivery. Callers treat it as fire
// and forget and only log failures.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// Message is a rendered email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "email", slog.String("from", msg.From), slog.String("to", msg.To), slog.String("subject", msg.Subject), slog.Int("html_bytes", len(msg.HTML)))
	return nil
}

// Direct renders and sends in the caller's goroutine. Used when no queue is
// configured.
type Direct struct {
	Mailer Mailer
	From   string
}

func (d Direct) Dispatch(ctx context.Context, n Notification) error {
	if err := n.validate(); err != nil {
		return err
	}
	msg, err := Render(n)
	if err != nil {
		return err
	}
	msg.From = d.From
	return d.Mailer.Send(ctx, msg)
}

type Nop struct{}

func (Nop) Dispatch(context.Context, Notification) error { return nil }
