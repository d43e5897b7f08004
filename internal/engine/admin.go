package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/engine/auth"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/events"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/permission"
)

func (e Engine) requireAdmin(ctx context.Context, actorID, action string) error {
	ev, err := e.evaluator(ctx, actorID, action)
	if err != nil {
		return err
	}
	if !ev.Actor.IsAdmin() {
		return auth.ForbiddenError{Action: action}
	}
	return nil
}

// AssignRole sets the role of userID. Admin only.
func (e Engine) AssignRole(ctx context.Context, actorID, userID string, role domain.Role) (domain.UserRole, error) {
	if err := e.requireAdmin(ctx, actorID, "assign roles"); err != nil {
		return domain.UserRole{}, err
	}
	return e.SeedRole(ctx, actorID, userID, role)
}

// SeedRole sets a role without an authorization check. It backs the local
// CLI, whose operator already has the database.
func (e Engine) SeedRole(ctx context.Context, operatorID, userID string, role domain.Role) (domain.UserRole, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserRole{}, invalid("user_id", "required")
	}
	role, err := domain.ParseRole(string(role))
	if err != nil {
		return domain.UserRole{}, invalid("role", err.Error())
	}
	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.UserRole{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpsertUserRole(ctx, tx, userID, role, now); err != nil {
		return domain.UserRole{}, err
	}
	if err := e.Events.Append(ctx, tx, events.RoleAssigned, events.KindUser, userID, operatorID, events.EventPayload{"role": role}); err != nil {
		return domain.UserRole{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.UserRole{}, err
	}
	return domain.UserRole{UserID: userID, Role: role, UpdatedAt: now}, nil
}

// UserRole returns the effective role of userID. Admins may look up anyone,
// other users only themselves.
func (e Engine) UserRole(ctx context.Context, actorID, userID string) (domain.UserRole, error) {
	if actorID != userID {
		if err := e.requireAdmin(ctx, actorID, "view roles"); err != nil {
			return domain.UserRole{}, err
		}
	}
	role, err := e.Roles.ResolveRole(ctx, userID)
	if err != nil {
		return domain.UserRole{}, err
	}
	return domain.UserRole{UserID: userID, Role: role}, nil
}

func (e Engine) ListUserRoles(ctx context.Context, actorID string) ([]domain.UserRole, error) {
	if err := e.requireAdmin(ctx, actorID, "view roles"); err != nil {
		return nil, err
	}
	return e.Repo.ListUserRoles(ctx)
}

func (e Engine) RoleMatrix(ctx context.Context, actorID string, role domain.Role) (permission.Matrix, error) {
	if err := e.requireAdmin(ctx, actorID, "view role permissions"); err != nil {
		return permission.Matrix{}, err
	}
	if _, err := domain.ParseRole(string(role)); err != nil {
		return permission.Matrix{}, invalid("role", err.Error())
	}
	return e.Matrices.LoadMatrix(ctx, role)
}

// UpdateMatrix replaces the permission row of m.Role. Admin only.
func (e Engine) UpdateMatrix(ctx context.Context, actorID string, m permission.Matrix) (permission.Matrix, error) {
	if err := e.requireAdmin(ctx, actorID, "update role permissions"); err != nil {
		return permission.Matrix{}, err
	}
	if err := e.ImportMatrices(ctx, actorID, m); err != nil {
		return permission.Matrix{}, err
	}
	return e.Matrices.LoadMatrix(ctx, m.Role)
}

// ImportMatrices replaces the given rows in one transaction without an
// authorization check.
func (e Engine) ImportMatrices(ctx context.Context, operatorID string, ms ...permission.Matrix) error {
	for _, m := range ms {
		if _, err := domain.ParseRole(string(m.Role)); err != nil {
			return invalid("role", err.Error())
		}
	}
	now := e.timestamp()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, m := range ms {
		if err := e.Repo.UpsertRoleMatrix(ctx, tx, m, now); err != nil {
			return err
		}
		payload := events.EventPayload{"flags": m.Flags()}
		if err := e.Events.Append(ctx, tx, events.RolePermissionsUpdated, events.KindRole, string(m.Role), operatorID, payload); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// CheckMatrices fails unless every role has a permission row.
func (e Engine) CheckMatrices(ctx context.Context) error {
	var errs []error
	for _, role := range domain.Roles {
		if _, err := e.Matrices.LoadMatrix(ctx, role); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type ProfileInput struct {
	Email       string `json:"email,omitempty" validate:"omitempty,email"`
	FirstName   string `json:"first_name,omitempty" validate:"max=100"`
	LastName    string `json:"last_name,omitempty" validate:"max=100"`
	CompanyName string `json:"company_name,omitempty" validate:"max=200"`
}

// SetProfile stores the contact details of userID. Users edit their own
// profile; admins may edit anyone's.
func (e Engine) SetProfile(ctx context.Context, actorID, userID string, in ProfileInput) (domain.Profile, error) {
	if actorID != userID {
		if err := e.requireAdmin(ctx, actorID, "edit profiles"); err != nil {
			return domain.Profile{}, err
		}
	} else if _, err := e.evaluator(ctx, actorID, "edit profile"); err != nil {
		return domain.Profile{}, err
	}
	return e.SeedProfile(ctx, userID, in)
}

// SeedProfile stores a profile without an authorization check.
func (e Engine) SeedProfile(ctx context.Context, userID string, in ProfileInput) (domain.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return domain.Profile{}, invalid("user_id", "required")
	}
	if err := e.validate(in); err != nil {
		return domain.Profile{}, err
	}
	p := domain.Profile{
		UserID:      userID,
		Email:       strings.TrimSpace(in.Email),
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		CompanyName: strings.TrimSpace(in.CompanyName),
		UpdatedAt:   e.timestamp(),
	}
	if err := e.Repo.UpsertProfile(ctx, p); err != nil {
		return domain.Profile{}, err
	}
	return p, nil
}

// Profile returns the stored profile of userID.
func (e Engine) Profile(ctx context.Context, actorID, userID string) (domain.Profile, error) {
	if actorID != userID {
		if err := e.requireAdmin(ctx, actorID, "view profiles"); err != nil {
			return domain.Profile{}, err
		}
	}
	return e.Repo.GetProfile(ctx, userID)
}
