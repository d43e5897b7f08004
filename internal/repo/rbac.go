package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
	"github.com/Farmhouse441/farmhouse-service-hub/internal/permission"
)

// GetUserRole returns ErrNotFound when the user has no row. A stored role
// outside the enum is reported as an error.
func (r Repo) GetUserRole(ctx context.Context, userID string) (domain.Role, error) {
	var raw string
	err := r.DB.QueryRowContext(ctx, `SELECT role FROM user_roles WHERE user_id=?`, userID).Scan(&raw)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return domain.ParseRole(raw)
}

func (r Repo) UpsertUserRole(ctx context.Context, tx *sql.Tx, userID string, role domain.Role, now string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO user_roles(user_id, role, created_at, updated_at) VALUES (?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET role=excluded.role, updated_at=excluded.updated_at`, userID, role, now, now)
	return err
}

func (r Repo) ListUserRoles(ctx context.Context) ([]domain.UserRole, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id, role, updated_at FROM user_roles ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.UserRole
	for rows.Next() {
		var ur domain.UserRole
		if err := rows.Scan(&ur.UserID, &ur.Role, &ur.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, ur)
	}
	return res, rows.Err()
}

// GetRoleMatrix loads the permission row for role. A missing row wraps
// permission.ErrMatrixMissing.
func (r Repo) GetRoleMatrix(ctx context.Context, role domain.Role) (permission.Matrix, error) {
	names := permission.FlagNames()
	values := make([]int64, len(names))
	dest := make([]any, len(names))
	for i := range values {
		dest[i] = &values[i]
	}
	query := `SELECT ` + strings.Join(names, ",") + ` FROM role_permissions WHERE role=?`
	err := r.DB.QueryRowContext(ctx, query, role).Scan(dest...)
	if err == sql.ErrNoRows {
		return permission.Matrix{}, fmt.Errorf("%w for role %s", permission.ErrMatrixMissing, role)
	}
	if err != nil {
		return permission.Matrix{}, err
	}
	flags := make(map[string]bool, len(names))
	for i, name := range names {
		flags[name] = values[i] != 0
	}
	return permission.FromFlags(role, flags)
}

// UpsertRoleMatrix replaces every flag of the matrix row for m.Role.
func (r Repo) UpsertRoleMatrix(ctx context.Context, tx *sql.Tx, m permission.Matrix, now string) error {
	if _, err := domain.ParseRole(string(m.Role)); err != nil {
		return err
	}
	names := permission.FlagNames()
	flags := m.Flags()
	cols := append([]string{"role"}, names...)
	cols = append(cols, "created_at", "updated_at")
	args := make([]any, 0, len(cols))
	args = append(args, m.Role)
	sets := make([]string, 0, len(names)+1)
	for _, name := range names {
		args = append(args, boolInt(flags[name]))
		sets = append(sets, name+"=excluded."+name)
	}
	args = append(args, now, now)
	sets = append(sets, "updated_at=excluded.updated_at")
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(cols)), ",")
	query := `INSERT INTO role_permissions(` + strings.Join(cols, ",") + `) VALUES (` + placeholders + `)
ON CONFLICT(role) DO UPDATE SET ` + strings.Join(sets, ", ")
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
