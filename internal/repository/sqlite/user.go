package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/jobboard/pkg/models"
)

const userColumns = `id, email, password_hash, role, company_name, created`

func (r *SQLiteRepo) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	if u == nil {
		return 0, fmt.Errorf("user is nil")
	}

	created := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO users (email, password_hash, role, company_name, created) VALUES (?, ?, ?, ?, ?)`,
		u.Email, u.PasswordHash, string(u.Role), nullString(u.CompanyName), created)
	if err != nil {
		return 0, translate(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	u.ID = id
	u.Created = created

	return id, nil
}

func (r *SQLiteRepo) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

// GetUserByEmail matches the address exactly as stored.
func (r *SQLiteRepo) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(r.conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func scanUser(row scanner) (*models.User, error) {
	var (
		u       models.User
		role    string
		company sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &role, &company, &u.Created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, err
	}
	u.Role = models.Role(role)
	u.CompanyName = stringPtr(company)

	return &u, nil
}
