package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/permission"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/repo"
)

// ForbiddenError indicates the actor may not perform Action.
type ForbiddenError struct {
	Action string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("not allowed to %s", e.Action)
}

// IsForbidden reports whether err is a ForbiddenError.
func IsForbidden(err error) bool {
	var fe ForbiddenError
	return errors.As(err, &fe)
}

// Service resolves roles and permission matrices from the record store.
type Service struct {
	Repo repo.Repo
}

// ResolveRole returns the stored role of userID. Users without a row are
// plain users.
func (s Service) ResolveRole(ctx context.Context, userID string) (domain.Role, error) {
	if userID == "" {
		return "", errors.New("user id required")
	}
	role, err := s.Repo.GetUserRole(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.RoleUser, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve role for %s: %w", userID, err)
	}
	return role, nil
}

func (s Service) LoadMatrix(ctx context.Context, role domain.Role) (permission.Matrix, error) {
	return s.Repo.GetRoleMatrix(ctx, role)
}
