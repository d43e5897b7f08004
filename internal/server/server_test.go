package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/config"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/db"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/engine"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/migrate"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/permission"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/storage"
)

const (
	testSecret = "test-secret"
	adminID    = "admin-1"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	e.Store = storage.NewMemoryStore()
	if _, err := e.SeedRole(context.Background(), "tester", adminID, domain.RoleAdmin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth: AuthConfig{
			JWTSecret:             testSecret,
			AllowLegacyUserHeader: true,
			DevAuth:               true,
		},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func as(userID string) map[string]string {
	return map[string]string{"X-User-Id": userID}
}

func decodeError(t *testing.T, data []byte) apiErrorBody {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v: %s", err, data)
	}
	return env.Error
}

func ticketBody(title string) map[string]any {
	return map[string]any{
		"title":           title,
		"work_start_date": "2024-03-01T08:00:00Z",
		"work_end_date":   "2024-03-01T12:00:00Z",
		"hourly_rate":     5000,
	}
}

func createTicket(t *testing.T, srv *testServer, userID string, body map[string]any) TicketResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tickets", body, as(userID))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create ticket status %d: %s", res.StatusCode, data)
	}
	var tk TicketResponse
	if err := json.Unmarshal(data, &tk); err != nil {
		t.Fatalf("unmarshal ticket: %v", err)
	}
	return tk
}

func TestOwnerTicketFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	body := ticketBody("Fence repair")
	body["before_photos"] = []map[string]any{{"filename": "gate.jpg", "data": []byte{0xff, 0xd8, 0xff, 0xe0}}}
	body["line_items"] = []map[string]any{{"description": "labor", "hours": 1.5, "hourly_rate": 5000}}
	tk := createTicket(t, srv, "user-a", body)
	if tk.Status != string(domain.StatusDraft) || tk.OwnerUserID != "user-a" {
		t.Fatalf("unexpected ticket: %+v", tk)
	}
	if tk.TotalAmount != 7500 || len(tk.LineItems) != 1 {
		t.Fatalf("expected total from line items, got %d (%d items)", tk.TotalAmount, len(tk.LineItems))
	}
	if len(tk.BeforePhotos) != 1 || !strings.HasPrefix(tk.BeforePhotos[0].Path, "before/") || tk.BeforePhotos[0].URL != "memory://"+tk.BeforePhotos[0].Path {
		t.Fatalf("unexpected photos: %+v", tk.BeforePhotos)
	}

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tickets/"+tk.ID, nil, as("user-b"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for other user, got %d: %s", res.StatusCode, data)
	}
	if apiErr := decodeError(t, data); apiErr.Code != "forbidden" || apiErr.Details["action"] != "view ticket" {
		t.Fatalf("unexpected error body: %+v", apiErr)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/tickets/"+tk.ID, map[string]any{"title": "Fence and gate repair"}, as("user-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("owner edit of draft status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tickets/"+tk.ID+"/status", map[string]any{"status": "submitted"}, as("user-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("submit status %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/tickets/"+tk.ID, map[string]any{"title": "Too late"}, as("user-a"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 editing submitted ticket, got %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tickets/"+tk.ID+"/status", map[string]any{"status": "approved_paid"}, as("user-a"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 approving own ticket, got %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tickets/"+tk.ID, nil, as("user-a"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 deleting submitted ticket, got %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tickets/missing", nil, as("user-a"))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", res.StatusCode, data)
	}
}

func TestStatusValidation(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	tk := createTicket(t, srv, "user-a", ticketBody("Gutter"))

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tickets/"+tk.ID+"/status", map[string]any{"status": "archived"}, as("user-a"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown status, got %d: %s", res.StatusCode, data)
	}
	if apiErr := decodeError(t, data); apiErr.Code != "validation_failed" {
		t.Fatalf("unexpected error code %q", apiErr.Code)
	}

	bad := ticketBody("Backwards")
	bad["work_end_date"] = "2024-02-01T00:00:00Z"
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tickets", bad, as("user-a"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for inverted window, got %d: %s", res.StatusCode, data)
	}
}

func TestAdminFlowWithDevToken(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/dev/login", map[string]any{"user_id": adminID}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d: %s", res.StatusCode, data)
	}
	var login DevLoginResponse
	if err := json.Unmarshal(data, &login); err != nil || login.Token == "" {
		t.Fatalf("dev login body: %v %s", err, data)
	}
	bearer := map[string]string{"Authorization": "Bearer " + login.Token}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, bearer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, data)
	}
	var me WhoAmIResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.UserID != adminID || me.Role != "admin" || !me.Permissions[permission.FlagViewAllTickets] {
		t.Fatalf("unexpected me: %+v", me)
	}

	body := ticketBody("Roof")
	body["submit"] = true
	tk := createTicket(t, srv, "user-a", body)

	notes := "paid by check"
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tickets/"+tk.ID+"/status", map[string]any{"status": "approved_paid", "admin_notes": notes}, bearer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("approve status %d: %s", res.StatusCode, data)
	}
	var approved TicketResponse
	if err := json.Unmarshal(data, &approved); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if approved.Status != string(domain.StatusApprovedPaid) || approved.AdminNotes == nil || *approved.AdminNotes != notes {
		t.Fatalf("unexpected approved ticket: %+v", approved)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tickets/"+tk.ID+"/capabilities", nil, bearer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("capabilities status %d: %s", res.StatusCode, data)
	}
	var caps permission.Capabilities
	if err := json.Unmarshal(data, &caps); err != nil {
		t.Fatalf("unmarshal caps: %v", err)
	}
	if !caps.CanEdit || !caps.CanDelete || len(caps.Transitions) == 0 {
		t.Fatalf("unexpected admin capabilities: %+v", caps)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tickets/"+tk.ID+"/events?limit=1", nil, bearer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("events status %d: %s", res.StatusCode, data)
	}
	var page paginatedEvents
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal events: %v", err)
	}
	if len(page.Items) != 1 || page.Items[0].Type != "ticket.status_changed" || page.NextCursor == "" {
		t.Fatalf("unexpected events page: %+v", page)
	}
	if page.Items[0].Payload["to"] != string(domain.StatusApprovedPaid) {
		t.Fatalf("unexpected payload: %+v", page.Items[0].Payload)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tickets/stats", nil, bearer)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("stats status %d: %s", res.StatusCode, data)
	}
	var stats StatsResponse
	if err := json.Unmarshal(data, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Total != 1 || stats.Counts["approved_paid"] != 1 || len(stats.Counts) != domain.NumStatuses {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tickets/"+tk.ID, nil, bearer)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("admin delete status %d: %s", res.StatusCode, data)
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tickets", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tickets", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d: %s", res.StatusCode, data)
	}
	if apiErr := decodeError(t, data); apiErr.Code != "invalid_credentials" {
		t.Fatalf("unexpected code %q", apiErr.Code)
	}
	if res.Header.Get("X-Frame-Options") != "DENY" {
		t.Fatalf("expected security headers, got %v", res.Header)
	}
}

func TestListTicketsPagination(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	for _, title := range []string{"one", "two", "three"} {
		createTicket(t, srv, "user-a", ticketBody(title))
	}
	createTicket(t, srv, "user-b", ticketBody("other"))

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tickets?limit=2", nil, as("user-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, data)
	}
	var page paginatedTickets
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(page.Items) != 2 || page.NextCursor == "" {
		t.Fatalf("unexpected first page: %d items cursor %q", len(page.Items), page.NextCursor)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tickets?limit=2&cursor="+url.QueryEscape(page.NextCursor), nil, as("user-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, data)
	}
	var second paginatedTickets
	if err := json.Unmarshal(data, &second); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(second.Items) != 1 || second.NextCursor != "" {
		t.Fatalf("unexpected second page: %+v", second)
	}
	seen := map[string]bool{}
	for _, tk := range append(page.Items, second.Items...) {
		if tk.OwnerUserID != "user-a" || seen[tk.ID] {
			t.Fatalf("unexpected ticket in user-a listing: %+v", tk)
		}
		seen[tk.ID] = true
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tickets", nil, as(adminID))
	if err := json.Unmarshal(data, &page); err != nil || res.StatusCode != http.StatusOK {
		t.Fatalf("admin list %d: %s", res.StatusCode, data)
	}
	if len(page.Items) != 4 {
		t.Fatalf("admin should see every ticket, got %d", len(page.Items))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tickets?cursor=garbage", nil, as("user-a"))
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad cursor, got %d: %s", res.StatusCode, data)
	}
}

func TestLineItemEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	tk := createTicket(t, srv, "user-a", ticketBody("Barn"))

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tickets/"+tk.ID+"/line-items", map[string]any{"description": "materials", "hours": 2, "hourly_rate": 1250}, as("user-a"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add line item status %d: %s", res.StatusCode, data)
	}
	var withItem TicketResponse
	if err := json.Unmarshal(data, &withItem); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(withItem.LineItems) != 1 || withItem.TotalAmount != 2500 {
		t.Fatalf("unexpected ticket after add: %+v", withItem)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tickets/"+tk.ID+"/line-items", map[string]any{"description": "huge", "hours": 10, "hourly_rate": int64(1) << 62}, as("user-a"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for oversized rate, got %d: %s", res.StatusCode, data)
	}
	itemID := withItem.LineItems[0].ID
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tickets/"+tk.ID+"/line-items/"+itemID, nil, as("user-b"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-owner, got %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v1/tickets/"+tk.ID+"/line-items/"+itemID, nil, as("user-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("remove line item status %d: %s", res.StatusCode, data)
	}
}

func TestRolePermissionsEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/roles/user/permissions", nil, as("user-a"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for non-admin, got %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/roles/user/permissions", nil, as(adminID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get permissions status %d: %s", res.StatusCode, data)
	}
	var current RolePermissionsResponse
	if err := json.Unmarshal(data, &current); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(current.Flags) != len(permission.FlagNames()) || !current.Flags[permission.FlagCreateServiceTicket] {
		t.Fatalf("unexpected user flags: %+v", current.Flags)
	}

	partial := map[string]any{"flags": map[string]bool{permission.FlagCreateServiceTicket: false}}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/roles/user/permissions", partial, as(adminID))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for partial matrix, got %d: %s", res.StatusCode, data)
	}

	current.Flags[permission.FlagCreateServiceTicket] = false
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/roles/user/permissions", map[string]any{"flags": current.Flags}, as(adminID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("put permissions status %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tickets", ticketBody("Blocked"), as("user-a"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 after revoking create, got %d: %s", res.StatusCode, data)
	}
}

func TestRoleAndProfileEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPut, srv.URL+"/v1/users/user-b/role", map[string]any{"role": "admin"}, as("user-a"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 assigning roles as user, got %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/users/user-b/role", map[string]any{"role": "admin"}, as(adminID))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assign role status %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/users/user-b/role", nil, as("user-b"))
	var ur domain.UserRole
	if err := json.Unmarshal(data, &ur); err != nil || res.StatusCode != http.StatusOK || ur.Role != domain.RoleAdmin {
		t.Fatalf("get role %d: %s", res.StatusCode, data)
	}

	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/users/user-a/profile", map[string]any{"email": "not-an-email"}, as("user-a"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for bad email, got %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v1/users/user-a/profile", map[string]any{"email": "a@example.com", "first_name": "Ada"}, as("user-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("set profile status %d: %s", res.StatusCode, data)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/users/user-a/profile", nil, as("user-c"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 reading another profile, got %d: %s", res.StatusCode, data)
	}
}

func TestMissingMatrixIsServerError(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	if _, err := srv.Engine.DB.Exec(`DELETE FROM role_permissions WHERE role='user'`); err != nil {
		t.Fatalf("delete matrix: %v", err)
	}
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tickets", nil, as("user-a"))
	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d: %s", res.StatusCode, data)
	}
	if apiErr := decodeError(t, data); apiErr.Code != "configuration_error" {
		t.Fatalf("unexpected code %q", apiErr.Code)
	}
}

func TestOpenAPIServed(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	var doc struct {
		Paths map[string]any `json:"paths"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshal openapi: %v", err)
	}
	for _, p := range []string{"/v1/tickets", "/v1/tickets/{id}/status", "/v1/roles/{role}/permissions"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Fatalf("openapi missing %s", p)
		}
	}
}

func TestWebhookDelivery(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	type delivery struct {
		event     string
		signature string
		body      webhookEvent
	}
	var (
		mu  sync.Mutex
		got []delivery
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt webhookEvent
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &evt)
		mu.Lock()
		got = append(got, delivery{event: r.Header.Get("X-Fsh-Event"), signature: r.Header.Get("X-Fsh-Signature"), body: evt})
		mu.Unlock()
		if r.Header.Get("X-Fsh-Signature") != "sha256="+sign("s3cret", data) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer hook.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d := newWebhookDispatcher(srv.Engine.Repo, []config.WebhookConfig{{
		URL:    hook.URL,
		Events: []string{"ticket.created"},
		Secret: "s3cret",
	}}, nil)
	// Only events after the dispatcher starts are delivered.
	d.dispatchAll(ctx)

	tk := createTicket(t, srv, "user-a", ticketBody("Silo"))
	res, data := doJSON(t, srv.Client(), http.MethodPatch, srv.URL+"/v1/tickets/"+tk.ID, map[string]any{"title": "Silo door"}, as("user-a"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, data)
	}
	d.dispatchAll(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected one delivery, got %d", len(got))
	}
	if got[0].event != "ticket.created" || got[0].body.EntityID != tk.ID || got[0].signature == "" {
		t.Fatalf("unexpected delivery: %+v", got[0])
	}
}
