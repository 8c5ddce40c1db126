package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/garnizeh/jobboard/pkg/models"
	"github.com/garnizeh/jobboard/pkg/repository"
)

const listingColumns = `l.id, l.employer_id, l.title, l.description, l.company_name, l.location, l.job_type, l.salary_range, l.posted_at`

const listingJoined = `SELECT ` + listingColumns + `, u.email, u.company_name FROM listings l JOIN users u ON u.id = l.employer_id`

func (r *SQLiteRepo) CreateListing(ctx context.Context, l *models.Listing) (int64, error) {
	if l == nil {
		return 0, fmt.Errorf("listing is nil")
	}

	posted := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO listings (employer_id, title, description, company_name, location, job_type, salary_range, posted_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		l.EmployerID, l.Title, l.Description, l.CompanyName, l.Location, nullString(l.JobType), nullString(l.SalaryRange), posted)
	if err != nil {
		return 0, translate(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	l.ID = id
	l.PostedAt = posted

	return id, nil
}

// GetListing returns the listing joined with its owner's public profile.
func (r *SQLiteRepo) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	l, err := scanListing(r.conn.QueryRow(ctx, listingJoined+` WHERE l.id = ?`, id), true)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return l, err
}

// ListListings returns every listing, newest first.
func (r *SQLiteRepo) ListListings(ctx context.Context) ([]models.Listing, error) {
	return r.queryListings(ctx, true, listingJoined+` ORDER BY l.posted_at DESC, l.id DESC`)
}

func (r *SQLiteRepo) ListListingsByOwner(ctx context.Context, employerID int64) ([]models.Listing, error) {
	return r.queryListings(ctx, false, `SELECT `+listingColumns+` FROM listings l WHERE l.employer_id = ? ORDER BY l.posted_at DESC, l.id DESC`, employerID)
}

// UpdateListing overwrites every mutable column of the row.
func (r *SQLiteRepo) UpdateListing(ctx context.Context, l *models.Listing) error {
	if l == nil {
		return fmt.Errorf("listing is nil")
	}

	res, err := r.conn.Exec(ctx, `UPDATE listings SET title = ?, description = ?, company_name = ?, location = ?, job_type = ?, salary_range = ? WHERE id = ?`,
		l.Title, l.Description, l.CompanyName, l.Location, nullString(l.JobType), nullString(l.SalaryRange), l.ID)
	if err != nil {
		return translate(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// DeleteListing deletes the listing in one transaction: the applications go
// with it through ON DELETE CASCADE and a blob.discard task is queued for
// each of their resumes.
func (r *SQLiteRepo) DeleteListing(ctx context.Context, id int64) ([]string, error) {
	var handles []string
	err := r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT resume_handle FROM applications WHERE job_id = ?`, id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var h string
			if err := rows.Scan(&h); err != nil {
				rows.Close()
				return err
			}
			handles = append(handles, h)
		}
		if err := rows.Close(); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return repository.ErrNotFound
		}

		for _, h := range handles {
			payload, err := json.Marshal(models.BlobDiscardPayload{Handle: h})
			if err != nil {
				return err
			}
			t := &models.Task{Type: models.TaskBlobDiscard, Payload: payload}
			if _, err := insertTask(ctx, tx, t); err != nil {
				return fmt.Errorf("queue resume reclaim: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return handles, nil
}

func (r *SQLiteRepo) queryListings(ctx context.Context, joined bool, q string, args ...any) ([]models.Listing, error) {
	rows, err := r.conn.QueryRows(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Listing{}
	for rows.Next() {
		l, err := scanListing(rows, joined)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}

	return out, rows.Err()
}

func scanListing(row scanner, joined bool) (*models.Listing, error) {
	var (
		l           models.Listing
		jobType     sql.NullString
		salaryRange sql.NullString
		ownerCo     sql.NullString
	)
	dest := []any{&l.ID, &l.EmployerID, &l.Title, &l.Description, &l.CompanyName, &l.Location, &jobType, &salaryRange, &l.PostedAt}
	if joined {
		dest = append(dest, &l.EmployerEmail, &ownerCo)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	l.JobType = stringPtr(jobType)
	l.SalaryRange = stringPtr(salaryRange)
	l.EmployerCompanyName = stringPtr(ownerCo)

	return &l, nil
}
