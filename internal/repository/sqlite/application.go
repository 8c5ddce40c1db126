package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garnizeh/jobboard/pkg/models"
)

const applicationColumns = `a.id, a.job_id, a.candidate_id, a.resume_handle, a.cover_letter, a.applied_at`

func (r *SQLiteRepo) ApplicationExists(ctx context.Context, jobID, candidateID int64) (bool, error) {
	var exists bool
	row := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM applications WHERE job_id = ? AND candidate_id = ?)`, jobID, candidateID)
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// CreateApplication inserts the row. The UNIQUE (job_id, candidate_id)
// constraint surfaces as repository.ErrUniqueViolation.
func (r *SQLiteRepo) CreateApplication(ctx context.Context, a *models.Application) (int64, error) {
	if a == nil {
		return 0, fmt.Errorf("application is nil")
	}

	applied := now()
	res, err := r.conn.Exec(ctx, `INSERT INTO applications (job_id, candidate_id, resume_handle, cover_letter, applied_at) VALUES (?, ?, ?, ?, ?)`,
		a.JobID, a.CandidateID, a.ResumeHandle, nullString(a.CoverLetter), applied)
	if err != nil {
		return 0, translate(err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	a.ID = id
	a.AppliedAt = applied

	return id, nil
}

// GetApplication returns the row enriched with the candidate email, the job
// title and company, and the job's owning employer.
func (r *SQLiteRepo) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+applicationColumns+`, u.email, l.title, l.company_name, l.employer_id
		FROM applications a
		JOIN users u ON u.id = a.candidate_id
		JOIN listings l ON l.id = a.job_id
		WHERE a.id = ?`, id)

	var (
		a     models.Application
		cover sql.NullString
	)
	if err := row.Scan(&a.ID, &a.JobID, &a.CandidateID, &a.ResumeHandle, &cover, &a.AppliedAt,
		&a.CandidateEmail, &a.JobTitle, &a.JobCompanyName, &a.EmployerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.CoverLetter = stringPtr(cover)

	return &a, nil
}

// ListApplicationsByJob returns the job's applications newest first, with candidate emails.
func (r *SQLiteRepo) ListApplicationsByJob(ctx context.Context, jobID int64) ([]models.Application, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+applicationColumns+`, u.email
		FROM applications a
		JOIN users u ON u.id = a.candidate_id
		WHERE a.job_id = ?
		ORDER BY a.applied_at DESC, a.id DESC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Application{}
	for rows.Next() {
		var (
			a     models.Application
			cover sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.JobID, &a.CandidateID, &a.ResumeHandle, &cover, &a.AppliedAt, &a.CandidateEmail); err != nil {
			return nil, err
		}
		a.CoverLetter = stringPtr(cover)
		out = append(out, a)
	}

	return out, rows.Err()
}

// ListApplicationsByCandidate returns the candidate's applications newest
// first, with job title and company.
func (r *SQLiteRepo) ListApplicationsByCandidate(ctx context.Context, candidateID int64) ([]models.Application, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT `+applicationColumns+`, l.title, l.company_name
		FROM applications a
		JOIN listings l ON l.id = a.job_id
		WHERE a.candidate_id = ?
		ORDER BY a.applied_at DESC, a.id DESC`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Application{}
	for rows.Next() {
		var (
			a     models.Application
			cover sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.JobID, &a.CandidateID, &a.ResumeHandle, &cover, &a.AppliedAt, &a.JobTitle, &a.JobCompanyName); err != nil {
			return nil, err
		}
		a.CoverLetter = stringPtr(cover)
		out = append(out, a)
	}

	return out, rows.Err()
}

// ListResumeHandles returns every blob handle referenced by an application row.
func (r *SQLiteRepo) ListResumeHandles(ctx context.Context) ([]string, error) {
	rows, err := r.conn.QueryRows(ctx, `SELECT resume_handle FROM applications`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, err
		}
		out = append(out, h)
	}

	return out, rows.Err()
}
