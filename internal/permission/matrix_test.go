package permission

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
)

func TestFlagNamesAreTotal(t *testing.T) {
	names := FlagNames()
	require.Len(t, names, 5+3*domain.NumStatuses)
	seen := map[string]bool{}
	for _, n := range names {
		require.False(t, seen[n], "duplicate flag %s", n)
		seen[n] = true
	}
	for _, s := range domain.Statuses {
		assert.True(t, seen["can_change_to_"+string(s)])
		assert.True(t, seen["can_change_from_"+string(s)])
		assert.True(t, seen["can_delete_"+string(s)])
	}
}

func TestFromFlagsRejectsMissingAndUnknown(t *testing.T) {
	flags := adminMatrix().Flags()
	delete(flags, DeleteFlag(domain.StatusDeclined))
	_, err := FromFlags(domain.RoleAdmin, flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can_delete_declined")

	flags = adminMatrix().Flags()
	flags["can_delete_everything"] = true
	_, err = FromFlags(domain.RoleAdmin, flags)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "can_delete_everything")
}

func TestMatrixJSONUsesCanonicalNames(t *testing.T) {
	m := userMatrix()
	data, err := json.Marshal(m)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "user", raw["role"])
	assert.Equal(t, true, raw["can_change_from_draft"])
	assert.Equal(t, false, raw["can_change_to_approved_paid"])
	assert.Equal(t, true, raw["can_delete_draft"])

	var back Matrix
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, m, back)
}

func TestMatrixYAMLRoundTrip(t *testing.T) {
	in := map[string]Matrix{"admin": adminMatrix()}
	data, err := yaml.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), "can_edit_all_tickets: true")

	var out map[string]Matrix
	require.NoError(t, yaml.Unmarshal(data, &out))
	got := out["admin"]
	got.Role = domain.RoleAdmin
	assert.Equal(t, adminMatrix(), got)
}

func TestStatusFlagsUnknownStatusIsFalse(t *testing.T) {
	f := FlagsFor(domain.Statuses[:]...)
	assert.False(t, f.Get(domain.Status("archived")))
	assert.Len(t, f.Enabled(), domain.NumStatuses)
}
