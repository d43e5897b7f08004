package repo

import (
	"context"
	"database/sql"

	"github.com/Farmhouse441/farmhouse-service-hub/internal/domain"
)

func (r Repo) UpsertProfile(ctx context.Context, p domain.Profile) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO profiles(user_id,email,first_name,last_name,company_name,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(user_id) DO UPDATE SET email=excluded.email, first_name=excluded.first_name, last_name=excluded.last_name,
company_name=excluded.company_name, updated_at=excluded.updated_at`,
		p.UserID, nullable(p.Email), p.FirstName, p.LastName, nullable(p.CompanyName), p.UpdatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProfile(ctx context.Context, userID string) (domain.Profile, error) {
	var p domain.Profile
	var email, company sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT user_id,email,first_name,last_name,company_name,updated_at FROM profiles WHERE user_id=?`, userID).
		Scan(&p.UserID, &email, &p.FirstName, &p.LastName, &company, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Email = email.String
	p.CompanyName = company.String
	return p, nil
}
