package repository

import (
	"context"
	"errors"

	"github.com/garnizeh/jobboard/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.
//
// Lookups return (nil, nil) when the row does not exist.

var (
	// ErrUniqueViolation is returned when an insert collides with a UNIQUE constraint.
	ErrUniqueViolation = errors.New("unique constraint violation")
	// ErrForeignKeyViolation is returned when a referenced row does not exist.
	ErrForeignKeyViolation = errors.New("foreign key violation")
	// ErrNotFound is returned by mutations whose target row is gone.
	ErrNotFound = errors.New("row not found")
)

type UserRepo interface {
	CreateUser(ctx context.Context, u *models.User) (int64, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type ListingRepo interface {
	CreateListing(ctx context.Context, l *models.Listing) (int64, error)
	GetListing(ctx context.Context, id int64) (*models.Listing, error)
	ListListings(ctx context.Context) ([]models.Listing, error)
	ListListingsByOwner(ctx context.Context, employerID int64) ([]models.Listing, error)
	UpdateListing(ctx context.Context, l *models.Listing) error
	// DeleteListing removes the listing and its applications and schedules
	// reclamation of their resume blobs. It returns the reclaimed handles.
	DeleteListing(ctx context.Context, id int64) ([]string, error)
}

type ApplicationRepo interface {
	ApplicationExists(ctx context.Context, jobID, candidateID int64) (bool, error)
	CreateApplication(ctx context.Context, a *models.Application) (int64, error)
	GetApplication(ctx context.Context, id int64) (*models.Application, error)
	ListApplicationsByJob(ctx context.Context, jobID int64) ([]models.Application, error)
	ListApplicationsByCandidate(ctx context.Context, candidateID int64) ([]models.Application, error)
	ListResumeHandles(ctx context.Context) ([]string, error)
}

type TaskRepo interface {
	EnqueueTask(ctx context.Context, t *models.Task) (int64, error)
	// FetchNextTask claims the next runnable task, or returns (nil, nil) when idle.
	FetchNextTask(ctx context.Context) (*models.Task, error)
	UpdateTask(ctx context.Context, t *models.Task) error
	MoveTaskToDeadLetter(ctx context.Context, t *models.Task) error
	// RequeueRunningTasks returns tasks left running by a previous process to the queue.
	RequeueRunningTasks(ctx context.Context) (int64, error)
}
