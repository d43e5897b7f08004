package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/engine"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/permission"
)

var adminErrors = []int{
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerRoles(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "list-user-roles",
		Method:      http.MethodGet,
		Path:        "/users/roles",
		Summary:     "List stored user roles",
		Errors:      adminErrors,
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.UserRole `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		roles, err := h.engine.ListUserRoles(ctx, userID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body []domain.UserRole `json:"body"`
		}{Body: nonNilSlice(roles)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user-role",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/role",
		Summary:     "Effective role of a user",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body domain.UserRole `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ur, err := h.engine.UserRole(ctx, userID, input.UserID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.UserRole `json:"body"`
		}{Body: ur}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-user-role",
		Method:      http.MethodPut,
		Path:        "/users/{user_id}/role",
		Summary:     "Assign a role (admin only)",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		UserID string         `path:"user_id"`
		Body   SetRoleRequest `json:"body"`
	}) (*struct {
		Body domain.UserRole `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ur, err := h.engine.AssignRole(ctx, userID, input.UserID, domain.Role(input.Body.Role))
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.UserRole `json:"body"`
		}{Body: ur}, nil
	})
}

func registerRolePermissions(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "get-role-permissions",
		Method:      http.MethodGet,
		Path:        "/roles/{role}/permissions",
		Summary:     "Permission matrix of a role (admin only)",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		Role string `path:"role" enum:"admin,user"`
	}) (*struct {
		Body RolePermissionsResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := h.engine.RoleMatrix(ctx, userID, domain.Role(input.Role))
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body RolePermissionsResponse `json:"body"`
		}{Body: rolePermissionsResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-role-permissions",
		Method:      http.MethodPut,
		Path:        "/roles/{role}/permissions",
		Summary:     "Replace the permission matrix of a role (admin only)",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		Role string                 `path:"role" enum:"admin,user"`
		Body RolePermissionsRequest `json:"body"`
	}) (*struct {
		Body RolePermissionsResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := permission.FromFlags(domain.Role(input.Role), input.Body.Flags)
		if err != nil {
			return nil, newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), nil)
		}
		m, err = h.engine.UpdateMatrix(ctx, userID, m)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body RolePermissionsResponse `json:"body"`
		}{Body: rolePermissionsResponse(m)}, nil
	})
}

func registerProfiles(api huma.API, h handlers) {
	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/profile",
		Summary:     "Contact details of a user",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body domain.Profile `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.engine.Profile(ctx, userID, input.UserID)
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.Profile `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-profile",
		Method:      http.MethodPut,
		Path:        "/users/{user_id}/profile",
		Summary:     "Store contact details used for notifications",
		Errors:      adminErrors,
	}, func(ctx context.Context, input *struct {
		UserID string         `path:"user_id"`
		Body   ProfileRequest `json:"body"`
	}) (*struct {
		Body domain.Profile `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := h.engine.SetProfile(ctx, userID, input.UserID, engine.ProfileInput(input.Body))
		if err != nil {
			return nil, h.fail(ctx, err)
		}
		return &struct {
			Body domain.Profile `json:"body"`
		}{Body: p}, nil
	})
}
