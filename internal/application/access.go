package application

import (
	"context"
	"io"

	"github.com/garnizeh/jobboard/internal/apperr"
	"github.com/garnizeh/jobboard/internal/auth"
	"github.com/garnizeh/jobboard/pkg/models"
)

// GetDetails returns the application when the caller is its candidate or
// the employer owning its job.
func (s *Service) GetDetails(ctx context.Context, appID int64, id auth.Identity) (*models.Application, error) {
	a, err := s.apps.GetApplication(ctx, appID)
	if err != nil {
		return nil, apperr.Internal(err, "load application")
	}
	if a == nil {
		return nil, apperr.NotFound("application not found")
	}

	switch id.Role {
	case models.RoleCandidate:
		if a.CandidateID != id.ID {
			return nil, apperr.Forbidden("you do not own this application").WithReason("not_owner")
		}
	case models.RoleEmployer:
		if a.EmployerID != id.ID {
			return nil, apperr.Forbidden("you do not own the job this application is for").WithReason("not_owner")
		}
	default:
		return nil, apperr.Forbidden("access denied")
	}

	return a, nil
}

// ListForJob returns the applications to a job the calling employer owns.
func (s *Service) ListForJob(ctx context.Context, jobID int64, id auth.Identity) ([]models.Application, error) {
	if err := auth.RequireRole(id, models.RoleEmployer); err != nil {
		return nil, err
	}

	l, err := s.listings.GetListing(ctx, jobID)
	if err != nil {
		return nil, apperr.Internal(err, "load job")
	}
	if l == nil {
		return nil, apperr.NotFound("job not found")
	}
	if l.EmployerID != id.ID {
		return nil, apperr.Forbidden("you do not own this job").WithReason("not_owner")
	}

	apps, err := s.apps.ListApplicationsByJob(ctx, jobID)
	if err != nil {
		return nil, apperr.Internal(err, "list applications")
	}
	return apps, nil
}

// ListMine returns the calling candidate's applications. The identity is
// the filter, so no ownership check applies.
func (s *Service) ListMine(ctx context.Context, id auth.Identity) ([]models.Application, error) {
	if err := auth.RequireRole(id, models.RoleCandidate); err != nil {
		return nil, err
	}

	apps, err := s.apps.ListApplicationsByCandidate(ctx, id.ID)
	if err != nil {
		return nil, apperr.Internal(err, "list applications")
	}
	return apps, nil
}

// OpenResume streams the resume of an application the caller may see.
func (s *Service) OpenResume(ctx context.Context, appID int64, id auth.Identity) (io.ReadCloser, *models.Application, error) {
	a, err := s.GetDetails(ctx, appID, id)
	if err != nil {
		return nil, nil, err
	}

	rc, err := s.stager.Open(ctx, a.ResumeHandle)
	if err != nil {
		return nil, nil, err
	}
	return rc, a, nil
}
