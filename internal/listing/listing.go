// Package listing implements job posting management with ownership checks.
package listing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/garnizeh/jobboard/internal/apperr"
	"github.com/garnizeh/jobboard/internal/auth"
	"github.com/garnizeh/jobboard/pkg/models"
	"github.com/garnizeh/jobboard/pkg/repository"
)

// UpdateMode selects how Update treats fields missing from the request.
type UpdateMode string

const (
	// UpdateReplace overwrites the whole listing; absent optional fields are cleared.
	UpdateReplace UpdateMode = "replace"
	// UpdateMerge keeps the stored value of every absent field.
	UpdateMerge UpdateMode = "merge"
)

// Fields is a listing body. A nil pointer means the field was not sent.
type Fields struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	CompanyName *string `json:"company_name"`
	Location    *string `json:"location"`
	JobType     *string `json:"job_type"`
	SalaryRange *string `json:"salary_range"`
}

type Service struct {
	repo   repository.ListingRepo
	mode   UpdateMode
	logger *slog.Logger
}

func NewService(repo repository.ListingRepo, mode UpdateMode, logger *slog.Logger) (*Service, error) {
	switch mode {
	case "":
		mode = UpdateReplace
	case UpdateReplace, UpdateMerge:
	default:
		return nil, fmt.Errorf("listing: unknown update mode %q", mode)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, mode: mode, logger: logger}, nil
}

// Mode returns the configured update policy.
func (s *Service) Mode() UpdateMode {
	return s.mode
}

// Create stores a listing owned by the calling employer.
func (s *Service) Create(ctx context.Context, id auth.Identity, f Fields) (*models.Listing, error) {
	if err := auth.RequireRole(id, models.RoleEmployer); err != nil {
		return nil, err
	}
	if err := requireCore(f); err != nil {
		return nil, err
	}

	l := &models.Listing{
		EmployerID:  id.ID,
		Title:       *f.Title,
		Description: *f.Description,
		CompanyName: *f.CompanyName,
		Location:    *f.Location,
		JobType:     optional(f.JobType),
		SalaryRange: optional(f.SalaryRange),
	}
	if _, err := s.repo.CreateListing(ctx, l); err != nil {
		if errors.Is(err, repository.ErrForeignKeyViolation) {
			return nil, apperr.Wrap(apperr.KindUnauthenticated, err, "account no longer exists")
		}
		return nil, apperr.Internal(err, "create listing")
	}
	s.logger.Info("listing created", slog.Int64("listing_id", l.ID), slog.Int64("employer_id", id.ID))

	return l, nil
}

// Get returns the listing with its owner's public profile.
func (s *Service) Get(ctx context.Context, listingID int64) (*models.Listing, error) {
	l, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return nil, apperr.Internal(err, "load listing")
	}
	if l == nil {
		return nil, apperr.NotFound("job not found")
	}
	return l, nil
}

// ListAll returns every listing, newest first.
func (s *Service) ListAll(ctx context.Context) ([]models.Listing, error) {
	ls, err := s.repo.ListListings(ctx)
	if err != nil {
		return nil, apperr.Internal(err, "list listings")
	}
	return ls, nil
}

// ListByOwner returns the calling employer's listings.
func (s *Service) ListByOwner(ctx context.Context, id auth.Identity) ([]models.Listing, error) {
	if err := auth.RequireRole(id, models.RoleEmployer); err != nil {
		return nil, err
	}
	ls, err := s.repo.ListListingsByOwner(ctx, id.ID)
	if err != nil {
		return nil, apperr.Internal(err, "list listings")
	}
	return ls, nil
}

// Update changes a listing the caller owns, following the configured mode.
func (s *Service) Update(ctx context.Context, listingID int64, id auth.Identity, f Fields) (*models.Listing, error) {
	existing, err := s.owned(ctx, listingID, id)
	if err != nil {
		return nil, err
	}

	updated := *existing
	switch s.mode {
	case UpdateMerge:
		mergeInto(&updated, f)
		if err := requireCore(Fields{
			Title:       &updated.Title,
			Description: &updated.Description,
			CompanyName: &updated.CompanyName,
			Location:    &updated.Location,
		}); err != nil {
			return nil, err
		}
	default:
		if err := requireCore(f); err != nil {
			return nil, err
		}
		updated.Title = *f.Title
		updated.Description = *f.Description
		updated.CompanyName = *f.CompanyName
		updated.Location = *f.Location
		updated.JobType = optional(f.JobType)
		updated.SalaryRange = optional(f.SalaryRange)
	}

	if err := s.repo.UpdateListing(ctx, &updated); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("job not found")
		}
		return nil, apperr.Internal(err, "update listing")
	}

	return s.Get(ctx, listingID)
}

// Delete removes a listing the caller owns together with its applications.
func (s *Service) Delete(ctx context.Context, listingID int64, id auth.Identity) error {
	if _, err := s.owned(ctx, listingID, id); err != nil {
		return err
	}

	handles, err := s.repo.DeleteListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("job not found")
		}
		return apperr.Internal(err, "delete listing")
	}
	s.logger.Info("listing deleted",
		slog.Int64("listing_id", listingID),
		slog.Int("applications_removed", len(handles)),
	)

	return nil
}

// owned loads the listing and checks the caller is its employer. Absence
// and foreign ownership are reported as different kinds.
func (s *Service) owned(ctx context.Context, listingID int64, id auth.Identity) (*models.Listing, error) {
	if err := auth.RequireRole(id, models.RoleEmployer); err != nil {
		return nil, err
	}
	l, err := s.repo.GetListing(ctx, listingID)
	if err != nil {
		return nil, apperr.Internal(err, "load listing")
	}
	if l == nil {
		return nil, apperr.NotFound("job not found")
	}
	if l.EmployerID != id.ID {
		return nil, apperr.Forbidden("you do not own this job posting").WithReason("not_owner")
	}
	return l, nil
}

func requireCore(f Fields) error {
	var missing []string
	for _, c := range []struct {
		name string
		v    *string
	}{
		{"title", f.Title},
		{"description", f.Description},
		{"company_name", f.CompanyName},
		{"location", f.Location},
	} {
		if c.v == nil || strings.TrimSpace(*c.v) == "" {
			missing = append(missing, c.name)
		}
	}
	if len(missing) > 0 {
		return apperr.InvalidRequest("missing required fields: " + strings.Join(missing, ", "))
	}
	return nil
}

func mergeInto(l *models.Listing, f Fields) {
	if f.Title != nil {
		l.Title = *f.Title
	}
	if f.Description != nil {
		l.Description = *f.Description
	}
	if f.CompanyName != nil {
		l.CompanyName = *f.CompanyName
	}
	if f.Location != nil {
		l.Location = *f.Location
	}
	if f.JobType != nil {
		l.JobType = optional(f.JobType)
	}
	if f.SalaryRange != nil {
		l.SalaryRange = optional(f.SalaryRange)
	}
}

// optional treats an empty string as absent.
func optional(v *string) *string {
	if v == nil || *v == "" {
		return nil
	}
	s := *v
	return &s
}
