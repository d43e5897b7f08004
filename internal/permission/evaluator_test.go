package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
)

func userMatrix() Matrix {
	return Matrix{
		Role:                   domain.RoleUser,
		CanCreateServiceTicket: true,
		CanViewOwnTickets:      true,
		CanEditOwnTickets:      true,
		ChangeFrom:             FlagsFor(domain.StatusDraft),
		ChangeTo:               FlagsFor(domain.StatusSubmitted),
		Delete:                 FlagsFor(domain.StatusDraft),
	}
}

func adminMatrix() Matrix {
	all := FlagsFor(domain.Statuses[:]...)
	return Matrix{
		Role:                   domain.RoleAdmin,
		CanCreateServiceTicket: true,
		CanViewOwnTickets:      true,
		CanViewAllTickets:      true,
		CanEditOwnTickets:      true,
		CanEditAllTickets:      true,
		ChangeFrom:             all,
		ChangeTo:               all,
		Delete:                 FlagsFor(domain.StatusDraft, domain.StatusSubmitted, domain.StatusDeclined),
	}
}

func userA() domain.Actor { return domain.Actor{UserID: "user-a", Role: domain.RoleUser} }
func admin() domain.Actor { return domain.Actor{UserID: "admin-1", Role: domain.RoleAdmin} }

func TestOwnerEditsDraftOnly(t *testing.T) {
	ev := NewEvaluator(userA(), userMatrix(), DefaultPolicy())
	tk := domain.Ticket{OwnerUserID: "user-a", Status: domain.StatusDraft}
	assert.True(t, ev.CanEdit(tk))

	tk.Status = domain.StatusSubmitted
	assert.False(t, ev.CanEdit(tk))

	other := domain.Ticket{OwnerUserID: "user-b", Status: domain.StatusDraft}
	assert.False(t, ev.CanEdit(other))
}

func TestOwnerEditableStatusesAreConfigurable(t *testing.T) {
	policy := Policy{OwnerEditable: FlagsFor(domain.StatusDraft, domain.StatusAdditionalInfoRequested)}
	ev := NewEvaluator(userA(), userMatrix(), policy)
	assert.True(t, ev.CanEdit(domain.Ticket{OwnerUserID: "user-a", Status: domain.StatusAdditionalInfoRequested}))
	assert.False(t, ev.CanEdit(domain.Ticket{OwnerUserID: "user-a", Status: domain.StatusSubmitted}))
}

func TestEditAllIgnoresStatusAndOwnership(t *testing.T) {
	ev := NewEvaluator(admin(), adminMatrix(), DefaultPolicy())
	for _, s := range domain.Statuses {
		assert.True(t, ev.CanEdit(domain.Ticket{OwnerUserID: "someone-else", Status: s}), s)
	}
}

func TestChangeStatusIsConjunctiveOverAllPairs(t *testing.T) {
	m := Matrix{
		ChangeFrom: FlagsFor(domain.StatusDraft, domain.StatusAdditionalInfoRequested, domain.StatusApprovedPaid),
		ChangeTo:   FlagsFor(domain.StatusSubmitted, domain.StatusDeclined, domain.StatusDraft),
	}
	ev := NewEvaluator(userA(), m, DefaultPolicy())
	pairs := 0
	for _, from := range domain.Statuses {
		for _, to := range domain.Statuses {
			pairs++
			want := m.ChangeFrom.Get(from) && m.ChangeTo.Get(to)
			got := ev.CanChangeStatus(domain.Ticket{OwnerUserID: "user-a", Status: from}, to)
			assert.Equal(t, want, got, "%s -> %s", from, to)
		}
	}
	require.Equal(t, 36, pairs)
}

func TestSelfTransitionFollowsFlags(t *testing.T) {
	m := Matrix{ChangeFrom: FlagsFor(domain.StatusDraft), ChangeTo: FlagsFor(domain.StatusDraft)}
	ev := NewEvaluator(userA(), m, DefaultPolicy())
	assert.True(t, ev.CanChangeStatus(domain.Ticket{Status: domain.StatusDraft}, domain.StatusDraft))

	m.ChangeTo = StatusFlags{}
	ev = NewEvaluator(userA(), m, DefaultPolicy())
	assert.False(t, ev.CanChangeStatus(domain.Ticket{Status: domain.StatusDraft}, domain.StatusDraft))
}

func TestCanView(t *testing.T) {
	ev := NewEvaluator(userA(), userMatrix(), DefaultPolicy())
	assert.True(t, ev.CanView(domain.Ticket{OwnerUserID: "user-a"}))
	assert.False(t, ev.CanView(domain.Ticket{OwnerUserID: "user-b"}))

	noOwn := userMatrix()
	noOwn.CanViewOwnTickets = false
	assert.False(t, NewEvaluator(userA(), noOwn, DefaultPolicy()).CanView(domain.Ticket{OwnerUserID: "user-a"}))

	assert.True(t, NewEvaluator(admin(), adminMatrix(), DefaultPolicy()).CanView(domain.Ticket{OwnerUserID: "user-b"}))
}

func TestNonAdminDeleteRequiresOwnedDraft(t *testing.T) {
	m := userMatrix()
	m.Delete = FlagsFor(domain.Statuses[:]...)
	ev := NewEvaluator(userA(), m, DefaultPolicy())
	assert.True(t, ev.CanDelete(domain.Ticket{OwnerUserID: "user-a", Status: domain.StatusDraft}))
	assert.False(t, ev.CanDelete(domain.Ticket{OwnerUserID: "user-a", Status: domain.StatusSubmitted}))
	assert.False(t, ev.CanDelete(domain.Ticket{OwnerUserID: "user-b", Status: domain.StatusDraft}))
}

func TestAdminDeleteGatedByStatusFlag(t *testing.T) {
	ev := NewEvaluator(admin(), adminMatrix(), DefaultPolicy())
	assert.True(t, ev.CanDelete(domain.Ticket{OwnerUserID: "user-a", Status: domain.StatusSubmitted}))
	assert.False(t, ev.CanDelete(domain.Ticket{OwnerUserID: "user-a", Status: domain.StatusApprovedPaid}))
}

func TestUserAScenario(t *testing.T) {
	ev := NewEvaluator(userA(), userMatrix(), DefaultPolicy())
	tk := domain.Ticket{ID: "t-1", OwnerUserID: "user-a", Status: domain.StatusDraft}

	require.True(t, ev.CanCreate())
	assert.True(t, ev.CanEdit(tk))
	assert.True(t, ev.CanDelete(tk))
	require.True(t, ev.CanChangeStatus(tk, domain.StatusSubmitted))

	tk.Status = domain.StatusSubmitted
	assert.False(t, ev.CanEdit(tk))
	assert.False(t, ev.CanDelete(tk))
	assert.Empty(t, ev.Transitions(tk))
}

func TestAdminScenario(t *testing.T) {
	ev := NewEvaluator(admin(), adminMatrix(), DefaultPolicy())
	tk := domain.Ticket{ID: "t-1", OwnerUserID: "user-a", Status: domain.StatusSubmitted}
	caps := ev.Capabilities(tk)
	assert.True(t, caps.CanView)
	assert.True(t, caps.CanEdit)
	assert.True(t, caps.CanDelete)
	assert.Len(t, caps.Transitions, domain.NumStatuses)
}

func TestZeroMatrixDeniesEverything(t *testing.T) {
	ev := NewEvaluator(userA(), Matrix{}, DefaultPolicy())
	tk := domain.Ticket{OwnerUserID: "user-a", Status: domain.StatusDraft}
	assert.False(t, ev.CanCreate())
	assert.False(t, ev.CanView(tk))
	assert.False(t, ev.CanEdit(tk))
	assert.False(t, ev.CanDelete(tk))
	assert.Empty(t, ev.Transitions(tk))
}

func TestViewScope(t *testing.T) {
	assert.Equal(t, ScopeAll, NewEvaluator(admin(), adminMatrix(), DefaultPolicy()).ViewScope())
	assert.Equal(t, ScopeOwn, NewEvaluator(userA(), userMatrix(), DefaultPolicy()).ViewScope())
	assert.Equal(t, ScopeNone, NewEvaluator(userA(), Matrix{Role: domain.RoleUser}, DefaultPolicy()).ViewScope())
}
