package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	TicketCreated          = "ticket.created"
	TicketUpdated          = "ticket.updated"
	TicketStatusChanged    = "ticket.status_changed"
	TicketDeleted          = "ticket.deleted"
	LineItemAdded          = "ticket.line_item_added"
	LineItemRemoved        = "ticket.line_item_removed"
	RoleAssigned           = "role.assigned"
	RolePermissionsUpdated = "role.permissions_updated"
)

const (
	KindTicket = "ticket"
	KindUser   = "user"
	KindRole   = "role"
)

// Types lists every event type the hub emits.
var Types = []string{
	TicketCreated,
	TicketUpdated,
	TicketStatusChanged,
	TicketDeleted,
	LineItemAdded,
	LineItemRemoved,
	RoleAssigned,
	RolePermissionsUpdated,
}

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an event inside tx so it commits with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?)`,
		ts, evtType, entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
