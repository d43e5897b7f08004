package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/engine"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/permission"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/repo"
)

var ticketErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

type ticketPath struct {
	ID string `path:"id"`
}

func registerTickets(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-ticket",
		Method:        http.MethodPost,
		Path:          "/tickets",
		Summary:       "Create ticket",
		DefaultStatus: http.StatusCreated,
		Errors:        ticketErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateTicketRequest `json:"body"`
	}) (*struct {
		Body TicketResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.engine.CreateTicket(ctx, userID, input.Body.input())
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body TicketResponse `json:"body"`
		}{Body: ticketResponse(t, h.engine.Store)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tickets",
		Method:      http.MethodGet,
		Path:        "/tickets",
		Summary:     "List visible tickets, newest first",
		Errors:      ticketErrors,
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"draft,submitted,additional_info_requested,approved_not_paid,approved_paid,declined"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedTickets `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		createdAt, id, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		f := repo.TicketFilters{Limit: limit + 1, CursorCreatedAt: createdAt, CursorID: id}
		if input.Status != "" {
			f.Status = domain.Status(input.Status)
		}
		items, err := h.engine.ListTickets(ctx, userID, f)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		resp := paginatedTickets{Items: []TicketResponse{}}
		if len(items) > limit {
			last := items[limit-1]
			resp.NextCursor = composeCursor(last.CreatedAt, last.ID)
			items = items[:limit]
		}
		for _, t := range items {
			resp.Items = append(resp.Items, ticketResponse(t, h.engine.Store))
		}
		return &struct {
			Body paginatedTickets `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ticket-stats",
		Method:      http.MethodGet,
		Path:        "/tickets/stats",
		Summary:     "Ticket counts by status",
		Errors:      ticketErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body StatsResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		counts, err := h.engine.TicketStats(ctx, userID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body StatsResponse `json:"body"`
		}{Body: statsResponse(counts)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-ticket",
		Method:      http.MethodGet,
		Path:        "/tickets/{id}",
		Summary:     "Get ticket",
		Errors:      ticketErrors,
	}, func(ctx context.Context, input *ticketPath) (*struct {
		Body TicketResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.engine.GetTicket(ctx, userID, input.ID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body TicketResponse `json:"body"`
		}{Body: ticketResponse(t, h.engine.Store)}, nil
	})

	update := func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body UpdateTicketRequest `json:"body"`
	}) (*struct {
		Body TicketResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.engine.UpdateTicket(ctx, userID, input.ID, input.Body.input())
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body TicketResponse `json:"body"`
		}{Body: ticketResponse(t, h.engine.Store)}, nil
	}
	huma.Register(api, huma.Operation{
		OperationID: "update-ticket",
		Method:      http.MethodPatch,
		Path:        "/tickets/{id}",
		Summary:     "Update ticket",
		Errors:      ticketErrors,
	}, update)
	huma.Register(api, huma.Operation{
		OperationID: "replace-ticket",
		Method:      http.MethodPut,
		Path:        "/tickets/{id}",
		Summary:     "Update ticket (PUT alias)",
		Errors:      ticketErrors,
	}, update)

	huma.Register(api, huma.Operation{
		OperationID:   "delete-ticket",
		Method:        http.MethodDelete,
		Path:          "/tickets/{id}",
		Summary:       "Delete ticket, its line items and attachments",
		DefaultStatus: http.StatusNoContent,
		Errors:        ticketErrors,
	}, func(ctx context.Context, input *ticketPath) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := h.engine.DeleteTicket(ctx, userID, input.ID); err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "ticket-capabilities",
		Method:      http.MethodGet,
		Path:        "/tickets/{id}/capabilities",
		Summary:     "What the caller may do with a ticket",
		Errors:      ticketErrors,
	}, func(ctx context.Context, input *ticketPath) (*struct {
		Body permission.Capabilities `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		caps, err := h.engine.TicketCapabilities(ctx, userID, input.ID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		caps.Transitions = nonNilSlice(caps.Transitions)
		return &struct {
			Body permission.Capabilities `json:"body"`
		}{Body: caps}, nil
	})
}

func registerTicketStatus(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "change-ticket-status",
		Method:      http.MethodPost,
		Path:        "/tickets/{id}/status",
		Summary:     "Move a ticket to another status",
		Description: "Moving a ticket to its current status succeeds without recording anything.",
		Errors:      ticketErrors,
	}, func(ctx context.Context, input *struct {
		ID   string              `path:"id"`
		Body ChangeStatusRequest `json:"body"`
	}) (*struct {
		Body TicketResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.engine.ChangeStatus(ctx, userID, input.ID, engine.ChangeStatusInput{
			Status:     domain.Status(input.Body.Status),
			AdminNotes: input.Body.AdminNotes,
		})
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body TicketResponse `json:"body"`
		}{Body: ticketResponse(t, h.engine.Store)}, nil
	})
}

func registerLineItems(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-line-item",
		Method:        http.MethodPost,
		Path:          "/tickets/{id}/line-items",
		Summary:       "Add a line item and recompute the total",
		DefaultStatus: http.StatusCreated,
		Errors:        ticketErrors,
	}, func(ctx context.Context, input *struct {
		ID   string          `path:"id"`
		Body LineItemRequest `json:"body"`
	}) (*struct {
		Body TicketResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.engine.AddLineItem(ctx, userID, input.ID, engine.LineItemInput(input.Body))
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body TicketResponse `json:"body"`
		}{Body: ticketResponse(t, h.engine.Store)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-line-item",
		Method:      http.MethodDelete,
		Path:        "/tickets/{id}/line-items/{line_item_id}",
		Summary:     "Remove a line item and recompute the total",
		Errors:      ticketErrors,
	}, func(ctx context.Context, input *struct {
		ID         string `path:"id"`
		LineItemID string `path:"line_item_id"`
	}) (*struct {
		Body TicketResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := h.engine.RemoveLineItem(ctx, userID, input.ID, input.LineItemID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body TicketResponse `json:"body"`
		}{Body: ticketResponse(t, h.engine.Store)}, nil
	})
}

func registerTicketEvents(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-ticket-events",
		Method:      http.MethodGet,
		Path:        "/tickets/{id}/events",
		Summary:     "Ticket history, newest first",
		Errors:      ticketErrors,
	}, func(ctx context.Context, input *struct {
		ID     string `path:"id"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var before int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			before = parsed
		}
		items, err := h.engine.TicketEvents(ctx, userID, input.ID, before, limit+1)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
