// Package application runs resume submissions and the authorized read paths
// over applications.
//
// A submission writes to two stores that share no transaction: the blob
// stager and the relational ledger. Submit drives them in a fixed order and
// discards the staged blob on every path that does not end in a committed
// row. Once the row exists the blob belongs to it.
package application

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"github.com/garnizeh/jobboard/internal/apperr"
	"github.com/garnizeh/jobboard/internal/auth"
	"github.com/garnizeh/jobboard/internal/blob"
	"github.com/garnizeh/jobboard/internal/tasks"
	"github.com/garnizeh/jobboard/pkg/models"
	"github.com/garnizeh/jobboard/pkg/repository"
)

// State is a submission state. Committed, Aborted and RolledBack are terminal.
type State string

const (
	StateReceived   State = "received"
	StateValidated  State = "validated"
	StateStaged     State = "staged"
	StateChecked    State = "checked"
	StateCommitted  State = "committed"
	StateAborted    State = "aborted"
	StateRolledBack State = "rolled_back"
)

// Upload is the resume part of a submission.
type Upload struct {
	Body        io.Reader
	ContentType string
	Size        int64
	Filename    string
}

type SubmitInput struct {
	JobID       int64
	CoverLetter *string
	Resume      *Upload
}

type Service struct {
	listings repository.ListingRepo
	apps     repository.ApplicationRepo
	tasks    repository.TaskRepo
	stager   blob.Stager
	logger   *slog.Logger
}

func NewService(listings repository.ListingRepo, apps repository.ApplicationRepo, taskRepo repository.TaskRepo, stager blob.Stager, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{listings: listings, apps: apps, tasks: taskRepo, stager: stager, logger: logger}
}

// submission carries one Submit call through its states.
type submission struct {
	svc    *Service
	id     auth.Identity
	in     SubmitInput
	state  State
	handle string
}

// Submit stages the resume and records the application. The caller's
// cancellation is ignored so the call always reaches a terminal state.
func (s *Service) Submit(ctx context.Context, id auth.Identity, in SubmitInput) (*models.Application, error) {
	ctx = context.WithoutCancel(ctx)
	sub := &submission{svc: s, id: id, in: in, state: StateReceived}

	if err := sub.validate(); err != nil {
		return nil, err
	}
	if err := sub.stage(ctx); err != nil {
		return nil, err
	}
	if err := sub.check(ctx); err != nil {
		return nil, err
	}
	return sub.commit(ctx)
}

// validate runs before any write.
func (sub *submission) validate() error {
	if err := auth.RequireRole(sub.id, models.RoleCandidate); err != nil {
		return err
	}
	if sub.in.JobID <= 0 {
		return apperr.InvalidRequest("job id is required").WithReason("job_id_missing")
	}
	if sub.in.Resume == nil || sub.in.Resume.Body == nil {
		return apperr.InvalidRequest("resume file is required").WithReason("resume_missing")
	}
	sub.state = StateValidated
	return nil
}

// stage writes the blob. Its errors propagate unchanged: nothing was written.
func (sub *submission) stage(ctx context.Context) error {
	r := sub.in.Resume
	handle, err := sub.svc.stager.Stage(ctx, r.Body, r.ContentType, r.Size)
	if err != nil {
		sub.svc.logger.Info("submission rejected",
			slog.Int64("candidate_id", sub.id.ID),
			slog.Int64("job_id", sub.in.JobID),
			slog.String("kind", string(apperr.KindOf(err))),
		)
		return err
	}
	sub.handle = handle
	sub.state = StateStaged
	return nil
}

// check confirms the job exists and the candidate has not applied yet.
func (sub *submission) check(ctx context.Context) error {
	l, err := sub.svc.listings.GetListing(ctx, sub.in.JobID)
	if err != nil {
		return sub.abort(ctx, apperr.Internal(err, "load job"))
	}
	if l == nil {
		return sub.abort(ctx, apperr.NotFound("job not found"))
	}

	exists, err := sub.svc.apps.ApplicationExists(ctx, sub.in.JobID, sub.id.ID)
	if err != nil {
		return sub.abort(ctx, apperr.Internal(err, "check existing application"))
	}
	if exists {
		return sub.abort(ctx, duplicate(nil))
	}

	sub.state = StateChecked
	return nil
}

// missingReference classifies a foreign key failure on insert. The job and
// the candidate are both referenced, so the job is looked up again.
func (sub *submission) missingReference(ctx context.Context, err error) error {
	l, lerr := sub.svc.listings.GetListing(ctx, sub.in.JobID)
	switch {
	case lerr != nil:
		return apperr.Internal(errors.Join(err, lerr), "recheck job")
	case l == nil:
		return apperr.Wrap(apperr.KindNotFound, err, "job not found")
	default:
		return apperr.Wrap(apperr.KindUnauthenticated, err, "account no longer exists")
	}
}

// commit inserts the row. The UNIQUE constraint is the authoritative guard:
// a concurrent submission may have passed check as well.
func (sub *submission) commit(ctx context.Context) (*models.Application, error) {
	a := &models.Application{
		JobID:        sub.in.JobID,
		CandidateID:  sub.id.ID,
		ResumeHandle: sub.handle,
		CoverLetter:  sub.in.CoverLetter,
	}
	if _, err := sub.svc.apps.CreateApplication(ctx, a); err != nil {
		switch {
		case errors.Is(err, repository.ErrUniqueViolation):
			return nil, sub.rollback(ctx, duplicate(err))
		case errors.Is(err, repository.ErrForeignKeyViolation):
			return nil, sub.rollback(ctx, sub.missingReference(ctx, err))
		default:
			return nil, sub.rollback(ctx, apperr.Internal(err, "create application"))
		}
	}

	sub.state = StateCommitted
	sub.svc.logger.Info("application submitted",
		slog.Int64("application_id", a.ID),
		slog.Int64("job_id", a.JobID),
		slog.Int64("candidate_id", a.CandidateID),
	)
	return a, nil
}

// abort compensates a failure found while checking.
func (sub *submission) abort(ctx context.Context, cause error) error {
	sub.state = StateAborted
	return sub.compensate(ctx, cause)
}

// rollback compensates a failed insert.
func (sub *submission) rollback(ctx context.Context, cause error) error {
	sub.state = StateRolledBack
	return sub.compensate(ctx, cause)
}

// compensate discards the staged blob and returns cause. A failed discard is
// logged and handed to the reclaim queue; it never replaces cause.
func (sub *submission) compensate(ctx context.Context, cause error) error {
	log := sub.svc.logger.With(
		slog.String("state", string(sub.state)),
		slog.String("handle", sub.handle),
		slog.Int64("job_id", sub.in.JobID),
		slog.Int64("candidate_id", sub.id.ID),
		slog.String("kind", string(apperr.KindOf(cause))),
	)

	if err := sub.svc.stager.Discard(ctx, sub.handle); err != nil {
		log.Error("discard staged resume", slog.Any("err", err))
		if _, qerr := tasks.EnqueueDiscard(ctx, sub.svc.tasks, sub.handle); qerr != nil {
			log.Error("queue resume reclaim", slog.Any("err", qerr))
		}
		return cause
	}

	log.Info("submission compensated")
	return cause
}

func duplicate(err error) error {
	return apperr.Wrap(apperr.KindDuplicateApplication, err, "you have already applied for this job")
}
