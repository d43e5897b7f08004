// Package permission holds the per-role permission matrix and the pure
// evaluator that answers authorization questions about tickets.
package permission

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
)

// ErrMatrixMissing means a valid role has no matrix row. It is a configuration
// error and must never be replaced by a default matrix.
var ErrMatrixMissing = errors.New("permission matrix missing")

// Canonical flag names. These are shared by the role_permissions columns, the
// JSON API and hub.yml.
const (
	FlagCreateServiceTicket = "can_create_service_ticket"
	FlagViewOwnTickets      = "can_view_own_tickets"
	FlagViewAllTickets      = "can_view_all_tickets"
	FlagEditOwnTickets      = "can_edit_own_tickets"
	FlagEditAllTickets      = "can_edit_all_tickets"
)

func ChangeToFlag(s domain.Status) string   { return "can_change_to_" + string(s) }
func ChangeFromFlag(s domain.Status) string { return "can_change_from_" + string(s) }
func DeleteFlag(s domain.Status) string     { return "can_delete_" + string(s) }

// StatusFlags holds one boolean per status, indexed by Status.Index.
type StatusFlags [domain.NumStatuses]bool

// Get reports the flag for s. Unknown statuses are false.
func (f StatusFlags) Get(s domain.Status) bool {
	i := s.Index()
	if i < 0 {
		return false
	}
	return f[i]
}

func (f *StatusFlags) Set(s domain.Status, v bool) {
	if i := s.Index(); i >= 0 {
		f[i] = v
	}
}

// Enabled lists the statuses whose flag is set, in canonical order.
func (f StatusFlags) Enabled() []domain.Status {
	var out []domain.Status
	for i, s := range domain.Statuses {
		if f[i] {
			out = append(out, s)
		}
	}
	return out
}

// FlagsFor builds StatusFlags with exactly the given statuses set.
func FlagsFor(statuses ...domain.Status) StatusFlags {
	var f StatusFlags
	for _, s := range statuses {
		f.Set(s, true)
	}
	return f
}

// Matrix is the capability table of a single role.
type Matrix struct {
	Role                   domain.Role
	CanCreateServiceTicket bool
	CanViewOwnTickets      bool
	CanViewAllTickets      bool
	CanEditOwnTickets      bool
	CanEditAllTickets      bool
	ChangeTo               StatusFlags
	ChangeFrom             StatusFlags
	Delete                 StatusFlags
}

// FlagNames returns every canonical flag name in a stable order.
func FlagNames() []string {
	names := []string{
		FlagCreateServiceTicket,
		FlagViewOwnTickets,
		FlagViewAllTickets,
		FlagEditOwnTickets,
		FlagEditAllTickets,
	}
	for _, s := range domain.Statuses {
		names = append(names, ChangeToFlag(s))
	}
	for _, s := range domain.Statuses {
		names = append(names, ChangeFromFlag(s))
	}
	for _, s := range domain.Statuses {
		names = append(names, DeleteFlag(s))
	}
	return names
}

// flagRefs maps each canonical name to the field it addresses.
func (m *Matrix) flagRefs() map[string]*bool {
	refs := map[string]*bool{
		FlagCreateServiceTicket: &m.CanCreateServiceTicket,
		FlagViewOwnTickets:      &m.CanViewOwnTickets,
		FlagViewAllTickets:      &m.CanViewAllTickets,
		FlagEditOwnTickets:      &m.CanEditOwnTickets,
		FlagEditAllTickets:      &m.CanEditAllTickets,
	}
	for i, s := range domain.Statuses {
		refs[ChangeToFlag(s)] = &m.ChangeTo[i]
		refs[ChangeFromFlag(s)] = &m.ChangeFrom[i]
		refs[DeleteFlag(s)] = &m.Delete[i]
	}
	return refs
}

// Flags flattens the matrix into canonical name -> value.
func (m Matrix) Flags() map[string]bool {
	out := make(map[string]bool, len(FlagNames()))
	for name, ref := range m.flagRefs() {
		out[name] = *ref
	}
	return out
}

// FromFlags builds a matrix from canonical names. Every flag must be present
// and unknown names are rejected.
func FromFlags(role domain.Role, flags map[string]bool) (Matrix, error) {
	m := Matrix{Role: role}
	refs := m.flagRefs()
	var missing, unknown []string
	for name := range flags {
		if _, ok := refs[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	for name, ref := range refs {
		v, ok := flags[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		*ref = v
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Matrix{}, fmt.Errorf("unknown permission flags: %s", strings.Join(unknown, ", "))
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Matrix{}, fmt.Errorf("missing permission flags: %s", strings.Join(missing, ", "))
	}
	return m, nil
}

func (m Matrix) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(FlagNames())+1)
	for name, v := range m.Flags() {
		out[name] = v
	}
	out["role"] = m.Role
	return json.Marshal(out)
}

func (m *Matrix) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var role domain.Role
	if r, ok := raw["role"]; ok {
		var s string
		if err := json.Unmarshal(r, &s); err != nil {
			return fmt.Errorf("role: %w", err)
		}
		parsed, err := domain.ParseRole(s)
		if err != nil {
			return err
		}
		role = parsed
		delete(raw, "role")
	}
	flags := make(map[string]bool, len(raw))
	for name, v := range raw {
		var b bool
		if err := json.Unmarshal(v, &b); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		flags[name] = b
	}
	parsed, err := FromFlags(role, flags)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MarshalYAML emits the flags in canonical order. The role is the key of the
// enclosing map in hub.yml and is not repeated.
func (m Matrix) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	flags := m.Flags()
	for _, name := range FlagNames() {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: name},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: fmt.Sprintf("%t", flags[name])},
		)
	}
	return node, nil
}

func (m *Matrix) UnmarshalYAML(value *yaml.Node) error {
	var flags map[string]bool
	if err := value.Decode(&flags); err != nil {
		return err
	}
	parsed, err := FromFlags(m.Role, flags)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
