package sqlite_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	dbfs "github.com/garnizeh/jobboard/db"
	dbpkg "github.com/garnizeh/jobboard/internal/db"
	sqlite "github.com/garnizeh/jobboard/internal/repository/sqlite"
	"github.com/garnizeh/jobboard/pkg/models"
	"github.com/garnizeh/jobboard/pkg/repository"
)

func setupRepo(t *testing.T) *sqlite.SQLiteRepo {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, dbpkg.FileDSN(filepath.Join(t.TempDir(), "test.db")), nil)
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })

	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	return sqlite.New(d, nil)
}

func strp(s string) *string { return &s }

func seedEmployer(t *testing.T, repo *sqlite.SQLiteRepo, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, PasswordHash: "hash", Role: models.RoleEmployer, CompanyName: strp("Acme")}
	if _, err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser employer: %v", err)
	}
	return u
}

func seedCandidate(t *testing.T, repo *sqlite.SQLiteRepo, email string) *models.User {
	t.Helper()
	u := &models.User{Email: email, PasswordHash: "hash", Role: models.RoleCandidate}
	if _, err := repo.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser candidate: %v", err)
	}
	return u
}

func seedListing(t *testing.T, repo *sqlite.SQLiteRepo, employerID int64, title string) *models.Listing {
	t.Helper()
	l := &models.Listing{EmployerID: employerID, Title: title, Description: "d", CompanyName: "Acme", Location: "Remote"}
	if _, err := repo.CreateListing(context.Background(), l); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	return l
}

func TestUserCRUD(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if _, err := repo.CreateUser(ctx, nil); err == nil {
		t.Fatalf("expected error when creating nil user")
	}

	got, err := repo.GetUserByID(ctx, 9999)
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for missing id, got %#v, %v", got, err)
	}
	got, err = repo.GetUserByEmail(ctx, "nobody@example.com")
	if err != nil || got != nil {
		t.Fatalf("expected nil, nil for missing email, got %#v, %v", got, err)
	}

	e := seedEmployer(t, repo, "boss@example.com")
	if e.ID == 0 || e.Created == 0 {
		t.Fatalf("expected id and created to be set: %#v", e)
	}

	got, err = repo.GetUserByEmail(ctx, "boss@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got == nil || got.ID != e.ID || got.Role != models.RoleEmployer || got.CompanyName == nil || *got.CompanyName != "Acme" {
		t.Fatalf("unexpected user: %#v", got)
	}

	c := seedCandidate(t, repo, "cand@example.com")
	got, err = repo.GetUserByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if got.CompanyName != nil {
		t.Fatalf("candidate should have no company, got %q", *got.CompanyName)
	}

	// Duplicate email maps to the unique sentinel.
	dup := &models.User{Email: "boss@example.com", PasswordHash: "x", Role: models.RoleCandidate}
	if _, err := repo.CreateUser(ctx, dup); !errors.Is(err, repository.ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got %v", err)
	}
}

func TestListingCRUD(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	owner := seedEmployer(t, repo, "owner@example.com")
	other := seedEmployer(t, repo, "other@example.com")

	if _, err := repo.CreateListing(ctx, nil); err == nil {
		t.Fatalf("expected error for nil listing")
	}

	l1 := seedListing(t, repo, owner.ID, "Go Developer")
	l2 := seedListing(t, repo, other.ID, "Rust Developer")
	l3 := seedListing(t, repo, owner.ID, "SRE")

	got, err := repo.GetListing(ctx, l1.ID)
	if err != nil {
		t.Fatalf("GetListing: %v", err)
	}
	if got.Title != "Go Developer" || got.EmployerEmail != "owner@example.com" {
		t.Fatalf("unexpected listing: %#v", got)
	}
	if got.EmployerCompanyName == nil || *got.EmployerCompanyName != "Acme" {
		t.Fatalf("expected owner company on joined read")
	}

	missing, err := repo.GetListing(ctx, 424242)
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for missing listing, got %#v, %v", missing, err)
	}

	all, err := repo.ListListings(ctx)
	if err != nil {
		t.Fatalf("ListListings: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 listings, got %d", len(all))
	}
	// Newest first; ids break ties within the same millisecond.
	if all[0].ID != l3.ID || all[2].ID != l1.ID {
		t.Fatalf("unexpected order: %d, %d, %d", all[0].ID, all[1].ID, all[2].ID)
	}

	mine, err := repo.ListListingsByOwner(ctx, owner.ID)
	if err != nil {
		t.Fatalf("ListListingsByOwner: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("expected 2 owned listings, got %d", len(mine))
	}
	for _, l := range mine {
		if l.ID == l2.ID {
			t.Fatalf("listing of another employer leaked into owner list")
		}
	}

	l1.Title = "Senior Go Developer"
	l1.SalaryRange = strp("100-120k")
	if err := repo.UpdateListing(ctx, l1); err != nil {
		t.Fatalf("UpdateListing: %v", err)
	}
	got, _ = repo.GetListing(ctx, l1.ID)
	if got.Title != "Senior Go Developer" || got.SalaryRange == nil || *got.SalaryRange != "100-120k" {
		t.Fatalf("update not persisted: %#v", got)
	}
	if got.EmployerID != owner.ID || got.PostedAt != l1.PostedAt {
		t.Fatalf("update must not change owner or posted_at")
	}

	if err := repo.UpdateListing(ctx, &models.Listing{ID: 999, Title: "x"}); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// Unknown owner is a foreign key violation.
	bad := &models.Listing{EmployerID: 777, Title: "t", Description: "d", CompanyName: "c", Location: "l"}
	if _, err := repo.CreateListing(ctx, bad); !errors.Is(err, repository.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation, got %v", err)
	}
}

func TestApplicationLifecycle(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	emp := seedEmployer(t, repo, "emp@example.com")
	cand := seedCandidate(t, repo, "cand@example.com")
	job := seedListing(t, repo, emp.ID, "Backend Engineer")

	exists, err := repo.ApplicationExists(ctx, job.ID, cand.ID)
	if err != nil || exists {
		t.Fatalf("expected no application yet, got %v, %v", exists, err)
	}

	a := &models.Application{JobID: job.ID, CandidateID: cand.ID, ResumeHandle: "resume-1.pdf", CoverLetter: strp("hello")}
	if _, err := repo.CreateApplication(ctx, a); err != nil {
		t.Fatalf("CreateApplication: %v", err)
	}
	if a.ID == 0 || a.AppliedAt == 0 {
		t.Fatalf("expected id and applied_at to be set")
	}

	exists, err = repo.ApplicationExists(ctx, job.ID, cand.ID)
	if err != nil || !exists {
		t.Fatalf("expected application to exist, got %v, %v", exists, err)
	}

	dup := &models.Application{JobID: job.ID, CandidateID: cand.ID, ResumeHandle: "resume-2.pdf"}
	if _, err := repo.CreateApplication(ctx, dup); !errors.Is(err, repository.ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation for second application, got %v", err)
	}

	ghost := &models.Application{JobID: 9999, CandidateID: cand.ID, ResumeHandle: "resume-3.pdf"}
	if _, err := repo.CreateApplication(ctx, ghost); !errors.Is(err, repository.ErrForeignKeyViolation) {
		t.Fatalf("expected ErrForeignKeyViolation for missing job, got %v", err)
	}

	got, err := repo.GetApplication(ctx, a.ID)
	if err != nil {
		t.Fatalf("GetApplication: %v", err)
	}
	if got.CandidateEmail != "cand@example.com" || got.JobTitle != "Backend Engineer" || got.EmployerID != emp.ID || got.JobCompanyName != "Acme" {
		t.Fatalf("unexpected enriched application: %#v", got)
	}
	if got.CoverLetter == nil || *got.CoverLetter != "hello" {
		t.Fatalf("cover letter lost")
	}

	byJob, err := repo.ListApplicationsByJob(ctx, job.ID)
	if err != nil || len(byJob) != 1 || byJob[0].CandidateEmail != "cand@example.com" {
		t.Fatalf("ListApplicationsByJob: %#v, %v", byJob, err)
	}

	mine, err := repo.ListApplicationsByCandidate(ctx, cand.ID)
	if err != nil || len(mine) != 1 || mine[0].JobTitle != "Backend Engineer" {
		t.Fatalf("ListApplicationsByCandidate: %#v, %v", mine, err)
	}

	handles, err := repo.ListResumeHandles(ctx)
	if err != nil || len(handles) != 1 || handles[0] != "resume-1.pdf" {
		t.Fatalf("ListResumeHandles: %v, %v", handles, err)
	}

	none, err := repo.GetApplication(ctx, 4040)
	if err != nil || none != nil {
		t.Fatalf("expected nil, nil for missing application")
	}
}

func TestDeleteListingCascadesAndQueuesReclaim(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	emp := seedEmployer(t, repo, "emp@example.com")
	c1 := seedCandidate(t, repo, "c1@example.com")
	c2 := seedCandidate(t, repo, "c2@example.com")
	job := seedListing(t, repo, emp.ID, "Doomed")
	keep := seedListing(t, repo, emp.ID, "Kept")

	for i, c := range []*models.User{c1, c2} {
		h := []string{"resume-a.pdf", "resume-b.pdf"}[i]
		if _, err := repo.CreateApplication(ctx, &models.Application{JobID: job.ID, CandidateID: c.ID, ResumeHandle: h}); err != nil {
			t.Fatalf("CreateApplication: %v", err)
		}
	}
	if _, err := repo.CreateApplication(ctx, &models.Application{JobID: keep.ID, CandidateID: c1.ID, ResumeHandle: "resume-c.pdf"}); err != nil {
		t.Fatalf("CreateApplication: %v", err)
	}

	handles, err := repo.DeleteListing(ctx, job.ID)
	if err != nil {
		t.Fatalf("DeleteListing: %v", err)
	}
	if len(handles) != 2 {
		t.Fatalf("expected 2 reclaimed handles, got %v", handles)
	}

	if got, _ := repo.GetListing(ctx, job.ID); got != nil {
		t.Fatalf("listing still present")
	}
	left, err := repo.ListResumeHandles(ctx)
	if err != nil || len(left) != 1 || left[0] != "resume-c.pdf" {
		t.Fatalf("expected only the kept application to survive, got %v, %v", left, err)
	}

	queued := map[string]bool{}
	for {
		task, err := repo.FetchNextTask(ctx)
		if err != nil {
			t.Fatalf("FetchNextTask: %v", err)
		}
		if task == nil {
			break
		}
		if task.Type != models.TaskBlobDiscard {
			t.Fatalf("unexpected task type %q", task.Type)
		}
		var p models.BlobDiscardPayload
		if err := json.Unmarshal(task.Payload, &p); err != nil {
			t.Fatalf("payload: %v", err)
		}
		queued[p.Handle] = true
	}
	if !queued["resume-a.pdf"] || !queued["resume-b.pdf"] || len(queued) != 2 {
		t.Fatalf("unexpected reclaim tasks: %v", queued)
	}

	if _, err := repo.DeleteListing(ctx, job.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestTaskQueue(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	if _, err := repo.EnqueueTask(ctx, nil); err == nil {
		t.Fatalf("expected error for nil task")
	}

	low := &models.Task{Type: models.TaskBlobDiscard, Payload: json.RawMessage(`{"handle":"low"}`), Priority: 200}
	high := &models.Task{Type: models.TaskBlobDiscard, Payload: json.RawMessage(`{"handle":"high"}`), Priority: 10}
	if _, err := repo.EnqueueTask(ctx, low); err != nil {
		t.Fatalf("enqueue low: %v", err)
	}
	if _, err := repo.EnqueueTask(ctx, high); err != nil {
		t.Fatalf("enqueue high: %v", err)
	}

	first, err := repo.FetchNextTask(ctx)
	if err != nil || first == nil {
		t.Fatalf("FetchNextTask: %v, %v", first, err)
	}
	if string(first.Payload) != `{"handle":"high"}` || first.Status != "running" || first.MaxAttempts != 5 {
		t.Fatalf("unexpected first task: %#v", first)
	}

	// A retry scheduled in the future is not runnable.
	future := int64(1) << 50
	first.Status = "retry"
	first.Attempts = 1
	first.NextTryAt = &future
	first.LastError = "boom"
	if err := repo.UpdateTask(ctx, first); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	second, err := repo.FetchNextTask(ctx)
	if err != nil || second == nil || string(second.Payload) != `{"handle":"low"}` {
		t.Fatalf("expected the low priority task, got %#v, %v", second, err)
	}

	idle, err := repo.FetchNextTask(ctx)
	if err != nil || idle != nil {
		t.Fatalf("expected no runnable task, got %#v, %v", idle, err)
	}

	// Crash recovery puts the running task back.
	n, err := repo.RequeueRunningTasks(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RequeueRunningTasks: %d, %v", n, err)
	}
	again, err := repo.FetchNextTask(ctx)
	if err != nil || again == nil || again.ID != second.ID {
		t.Fatalf("expected requeued task, got %#v, %v", again, err)
	}

	if err := repo.MoveTaskToDeadLetter(ctx, again); err != nil {
		t.Fatalf("MoveTaskToDeadLetter: %v", err)
	}
	if n, _ := repo.RequeueRunningTasks(ctx); n != 0 {
		t.Fatalf("dead lettered task should be gone from tasks, requeued %d", n)
	}
}

func TestFetchNextTaskClaimsOnce(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	const total = 20
	for i := 0; i < total; i++ {
		if _, err := repo.EnqueueTask(ctx, &models.Task{Type: models.TaskBlobDiscard, Payload: json.RawMessage(`{}`)}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = map[int64]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := repo.FetchNextTask(ctx)
				if err != nil {
					t.Errorf("FetchNextTask: %v", err)
					return
				}
				if task == nil {
					return
				}
				mu.Lock()
				seen[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d distinct claims, got %d", total, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("task %d claimed %d times", id, n)
		}
	}
}
