package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/permission"
)

// Config models hub.yml.
type Config struct {
	Policy struct {
		OwnerEditableStatuses []string `yaml:"owner_editable_statuses" json:"owner_editable_statuses"`
	} `yaml:"policy" json:"policy"`
	Permissions map[string]permission.Matrix `yaml:"permissions" json:"permissions"`
	Webhooks    []WebhookConfig              `yaml:"webhooks,omitempty" json:"webhooks,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events,omitempty" json:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty" json:"enabled,omitempty"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with fsh config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOrDefault returns the workspace config, or the built-in default when the
// file does not exist.
func LoadOrDefault(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Policy.OwnerEditableStatuses) == 0 {
		return fmt.Errorf("config.policy.owner_editable_statuses is required")
	}
	for _, s := range c.Policy.OwnerEditableStatuses {
		if _, err := domain.ParseStatus(s); err != nil {
			return fmt.Errorf("config.policy.owner_editable_statuses: %w", err)
		}
	}
	if len(c.Permissions) == 0 {
		return fmt.Errorf("config.permissions is required")
	}
	for name := range c.Permissions {
		if _, err := domain.ParseRole(name); err != nil {
			return fmt.Errorf("config.permissions: %w", err)
		}
	}
	for _, role := range domain.Roles {
		if _, ok := c.Permissions[string(role)]; !ok {
			return fmt.Errorf("config.permissions must include %s", role)
		}
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must be >= 0", i)
		}
	}
	return nil
}

// EvaluatorPolicy converts the policy section into evaluator form.
func (c *Config) EvaluatorPolicy() permission.Policy {
	var p permission.Policy
	for _, s := range c.Policy.OwnerEditableStatuses {
		p.OwnerEditable.Set(domain.Status(s), true)
	}
	return p
}

// Matrices returns the seeded matrices with their role set, ordered by role.
func (c *Config) Matrices() []permission.Matrix {
	roles := make([]string, 0, len(c.Permissions))
	for r := range c.Permissions {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	out := make([]permission.Matrix, 0, len(roles))
	for _, r := range roles {
		m := c.Permissions[r]
		m.Role = domain.Role(r)
		out = append(out, m)
	}
	return out
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "hub.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `policy:
  # statuses in which an owner with can_edit_own_tickets may edit
  owner_editable_statuses: [draft]

permissions:
  admin:
    can_create_service_ticket: true
    can_view_own_tickets: true
    can_view_all_tickets: true
    can_edit_own_tickets: true
    can_edit_all_tickets: true
    can_change_to_draft: true
    can_change_to_submitted: true
    can_change_to_additional_info_requested: true
    can_change_to_approved_not_paid: true
    can_change_to_approved_paid: true
    can_change_to_declined: true
    can_change_from_draft: true
    can_change_from_submitted: true
    can_change_from_additional_info_requested: true
    can_change_from_approved_not_paid: true
    can_change_from_approved_paid: true
    can_change_from_declined: true
    can_delete_draft: true
    can_delete_submitted: true
    can_delete_additional_info_requested: true
    can_delete_approved_not_paid: true
    can_delete_approved_paid: true
    can_delete_declined: true

  user:
    can_create_service_ticket: true
    can_view_own_tickets: true
    can_view_all_tickets: false
    can_edit_own_tickets: true
    can_edit_all_tickets: false
    can_change_to_draft: false
    can_change_to_submitted: true
    can_change_to_additional_info_requested: false
    can_change_to_approved_not_paid: false
    can_change_to_approved_paid: false
    can_change_to_declined: false
    can_change_from_draft: true
    can_change_from_submitted: false
    can_change_from_additional_info_requested: true
    can_change_from_approved_not_paid: false
    can_change_from_approved_paid: false
    can_change_from_declined: false
    can_delete_draft: true
    can_delete_submitted: false
    can_delete_additional_info_requested: false
    can_delete_approved_not_paid: false
    can_delete_approved_paid: false
    can_delete_declined: false

# webhooks:
#   - url: https://example.com/hooks/tickets
#     events: [ticket.status_changed]
#     secret: change-me
#     timeout_seconds: 5
`
