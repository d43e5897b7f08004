package fshsdk_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/config"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/db"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/engine"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/migrate"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/server"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/storage"
	fshsdk "github.com/Farmhouse441/farmhouse-service-hub/sdk/go"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	workspace := t.TempDir()
	_, err := db.EnsureWorkspace(workspace)
	require.NoError(t, err)
	conn, err := db.Open(db.Config{Workspace: workspace})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	e := engine.New(conn, config.Default())
	e.Store = storage.NewMemoryStore()
	_, err = e.SeedRole(context.Background(), "tester", "admin-1", domain.RoleAdmin)
	require.NoError(t, err)

	handler, err := server.New(server.Config{
		Engine: e,
		Auth: server.AuthConfig{
			JWTSecret:             "sdk-secret",
			AllowLegacyUserHeader: true,
			DevAuth:               true,
		},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientTicketLifecycle(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()

	owner := fshsdk.New(srv.URL)
	owner.UserID = "user-a"
	tk, err := owner.CreateTicket(ctx, fshsdk.CreateTicket{
		Title:         "Barn roof",
		WorkStartDate: "2024-05-01T08:00:00Z",
		WorkEndDate:   "2024-05-01T16:00:00Z",
		HourlyRate:    4000,
		LineItems:     []fshsdk.NewLineItem{{Description: "labor", Hours: 2, HourlyRate: 4000}},
	})
	require.NoError(t, err)
	assert.Equal(t, "draft", tk.Status)
	assert.Equal(t, int64(8000), tk.TotalAmount)

	tk, err = owner.AddLineItem(ctx, tk.ID, fshsdk.NewLineItem{Description: "materials", Hours: 0.5, HourlyRate: 1000})
	require.NoError(t, err)
	assert.Equal(t, int64(8500), tk.TotalAmount)
	require.Len(t, tk.LineItems, 2)

	tk, err = owner.ChangeStatus(ctx, tk.ID, "submitted", nil)
	require.NoError(t, err)
	assert.Equal(t, "submitted", tk.Status)

	_, err = owner.ChangeStatus(ctx, tk.ID, "approved_paid", nil)
	var apiErr *fshsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.Equal(t, "forbidden", apiErr.Code)

	admin := fshsdk.New(srv.URL)
	token, err := admin.DevLogin(ctx, "admin-1")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	me, err := admin.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "admin", me.Role)

	caps, err := admin.Capabilities(ctx, tk.ID)
	require.NoError(t, err)
	assert.True(t, caps.CanDelete)
	assert.Contains(t, caps.Transitions, "approved_paid")

	notes := "paid by cheque"
	tk, err = admin.ChangeStatus(ctx, tk.ID, "approved_paid", &notes)
	require.NoError(t, err)
	require.NotNil(t, tk.AdminNotes)
	assert.Equal(t, notes, *tk.AdminNotes)

	page, err := owner.TicketEvents(ctx, tk.ID, 10, "")
	require.NoError(t, err)
	require.NotEmpty(t, page.Items)
	assert.Equal(t, "ticket.status_changed", page.Items[0].Type)
	assert.Equal(t, "approved_paid", page.Items[0].Payload["to"])

	list, err := owner.Tickets(ctx, "", 10, "")
	require.NoError(t, err)
	require.Len(t, list.Items, 1)
	assert.Equal(t, tk.ID, list.Items[0].ID)

	require.NoError(t, admin.DeleteTicket(ctx, tk.ID))
	_, err = admin.Ticket(ctx, tk.ID)
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestClientRoleAdministration(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	admin := fshsdk.New(srv.URL)
	admin.UserID = "admin-1"

	ur, err := admin.SetRole(ctx, "user-b", "admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", ur.Role)

	perms, err := admin.RolePermissions(ctx, "user")
	require.NoError(t, err)
	assert.True(t, perms.Flags["can_create_service_ticket"])

	perms.Flags["can_create_service_ticket"] = false
	perms, err = admin.SetRolePermissions(ctx, "user", perms.Flags)
	require.NoError(t, err)
	assert.False(t, perms.Flags["can_create_service_ticket"])

	user := fshsdk.New(srv.URL)
	user.UserID = "user-c"
	_, err = user.CreateTicket(ctx, fshsdk.CreateTicket{
		Title:         "Blocked",
		WorkStartDate: "2024-05-01T08:00:00Z",
		WorkEndDate:   "2024-05-01T09:00:00Z",
	})
	var apiErr *fshsdk.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
}
