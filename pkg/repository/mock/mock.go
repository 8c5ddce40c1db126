// Package mock provides an in-memory implementation of the repository
// interfaces with error injection for service tests.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/garnizeh/jobboard/pkg/models"
	"github.com/garnizeh/jobboard/pkg/repository"
)

var _ repository.UserRepo = (*Store)(nil)
var _ repository.ListingRepo = (*Store)(nil)
var _ repository.ApplicationRepo = (*Store)(nil)
var _ repository.TaskRepo = (*Store)(nil)

// Store keeps users, listings, applications and tasks in memory. The exported
// *Err fields make the matching method fail.
type Store struct {
	mu           sync.Mutex
	users        map[int64]*models.User
	listings     map[int64]*models.Listing
	applications map[int64]*models.Application
	tasks        []*models.Task
	nextID       int64
	clock        int64

	CreateUserErr        error
	GetListingErr        error
	ExistsErr            error
	CreateApplicationErr error
	DeleteListingErr     error
	EnqueueTaskErr       error

	// BeforeCreateApplication runs at the start of CreateApplication, outside
	// the lock, so a test can change the store between check and insert.
	BeforeCreateApplication func()

	// StaleExists makes ApplicationExists always report false, as when a
	// concurrent submission commits between the check and the insert.
	StaleExists bool
}

func NewStore() *Store {
	return &Store{
		users:        map[int64]*models.User{},
		listings:     map[int64]*models.Listing{},
		applications: map[int64]*models.Application{},
	}
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// tick returns a strictly increasing timestamp so ordering is deterministic.
func (s *Store) tick() int64 {
	s.clock++
	return s.clock
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateUserErr != nil {
		return 0, s.CreateUserErr
	}
	for _, existing := range s.users {
		if existing.Email == u.Email {
			return 0, repository.ErrUniqueViolation
		}
	}
	u.ID = s.id()
	u.Created = s.tick()
	cp := *u
	s.users[u.ID] = &cp
	return u.ID, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateListing(ctx context.Context, l *models.Listing) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[l.EmployerID]; !ok {
		return 0, repository.ErrForeignKeyViolation
	}
	l.ID = s.id()
	l.PostedAt = s.tick()
	cp := *l
	s.listings[l.ID] = &cp
	return l.ID, nil
}

func (s *Store) GetListing(ctx context.Context, id int64) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetListingErr != nil {
		return nil, s.GetListingErr
	}
	l, ok := s.listings[id]
	if !ok {
		return nil, nil
	}
	return s.joinListing(l), nil
}

func (s *Store) joinListing(l *models.Listing) *models.Listing {
	cp := *l
	if u, ok := s.users[l.EmployerID]; ok {
		cp.EmployerEmail = u.Email
		cp.EmployerCompanyName = u.CompanyName
	}
	return &cp
}

func (s *Store) ListListings(ctx context.Context) ([]models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Listing{}
	for _, l := range s.listings {
		out = append(out, *s.joinListing(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt > out[j].PostedAt })
	return out, nil
}

func (s *Store) ListListingsByOwner(ctx context.Context, employerID int64) ([]models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Listing{}
	for _, l := range s.listings {
		if l.EmployerID == employerID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt > out[j].PostedAt })
	return out, nil
}

func (s *Store) UpdateListing(ctx context.Context, l *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.listings[l.ID]
	if !ok {
		return repository.ErrNotFound
	}
	cp := *l
	cp.EmployerID = existing.EmployerID
	cp.PostedAt = existing.PostedAt
	cp.EmployerEmail = ""
	cp.EmployerCompanyName = nil
	s.listings[l.ID] = &cp
	return nil
}

func (s *Store) DeleteListing(ctx context.Context, id int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteListingErr != nil {
		return nil, s.DeleteListingErr
	}
	if _, ok := s.listings[id]; !ok {
		return nil, repository.ErrNotFound
	}
	delete(s.listings, id)
	var handles []string
	for aid, a := range s.applications {
		if a.JobID == id {
			handles = append(handles, a.ResumeHandle)
			delete(s.applications, aid)
		}
	}
	for _, h := range handles {
		s.tasks = append(s.tasks, &models.Task{ID: s.id(), Type: models.TaskBlobDiscard, Payload: discardPayload(h), Status: "queued"})
	}
	return handles, nil
}

func (s *Store) ApplicationExists(ctx context.Context, jobID, candidateID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ExistsErr != nil {
		return false, s.ExistsErr
	}
	if s.StaleExists {
		return false, nil
	}
	for _, a := range s.applications {
		if a.JobID == jobID && a.CandidateID == candidateID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) CreateApplication(ctx context.Context, a *models.Application) (int64, error) {
	if s.BeforeCreateApplication != nil {
		s.BeforeCreateApplication()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.CreateApplicationErr != nil {
		return 0, s.CreateApplicationErr
	}
	if _, ok := s.listings[a.JobID]; !ok {
		return 0, repository.ErrForeignKeyViolation
	}
	if _, ok := s.users[a.CandidateID]; !ok {
		return 0, repository.ErrForeignKeyViolation
	}
	for _, existing := range s.applications {
		if existing.JobID == a.JobID && existing.CandidateID == a.CandidateID {
			return 0, fmt.Errorf("%w: applications.job_id, applications.candidate_id", repository.ErrUniqueViolation)
		}
		if existing.ResumeHandle == a.ResumeHandle {
			return 0, fmt.Errorf("%w: applications.resume_handle", repository.ErrUniqueViolation)
		}
	}
	a.ID = s.id()
	a.AppliedAt = s.tick()
	cp := *a
	s.applications[a.ID] = &cp
	return a.ID, nil
}

func (s *Store) GetApplication(ctx context.Context, id int64) (*models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.applications[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	if u, ok := s.users[a.CandidateID]; ok {
		cp.CandidateEmail = u.Email
	}
	if l, ok := s.listings[a.JobID]; ok {
		cp.JobTitle = l.Title
		cp.JobCompanyName = l.CompanyName
		cp.EmployerID = l.EmployerID
	}
	return &cp, nil
}

func (s *Store) ListApplicationsByJob(ctx context.Context, jobID int64) ([]models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Application{}
	for _, a := range s.applications {
		if a.JobID != jobID {
			continue
		}
		cp := *a
		if u, ok := s.users[a.CandidateID]; ok {
			cp.CandidateEmail = u.Email
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt > out[j].AppliedAt })
	return out, nil
}

func (s *Store) ListApplicationsByCandidate(ctx context.Context, candidateID int64) ([]models.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Application{}
	for _, a := range s.applications {
		if a.CandidateID != candidateID {
			continue
		}
		cp := *a
		if l, ok := s.listings[a.JobID]; ok {
			cp.JobTitle = l.Title
			cp.JobCompanyName = l.CompanyName
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt > out[j].AppliedAt })
	return out, nil
}

func (s *Store) ListResumeHandles(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.applications {
		out = append(out, a.ResumeHandle)
	}
	return out, nil
}

func (s *Store) EnqueueTask(ctx context.Context, t *models.Task) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EnqueueTaskErr != nil {
		return 0, s.EnqueueTaskErr
	}
	cp := *t
	cp.ID = s.id()
	cp.Status = "queued"
	if cp.MaxAttempts == 0 {
		cp.MaxAttempts = 5
	}
	s.tasks = append(s.tasks, &cp)
	return cp.ID, nil
}

func (s *Store) FetchNextTask(ctx context.Context) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tasks {
		if t.Status == "queued" || t.Status == "retry" {
			t.Status = "running"
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) UpdateTask(ctx context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.tasks {
		if existing.ID == t.ID {
			cp := *t
			s.tasks[i] = &cp
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *Store) MoveTaskToDeadLetter(ctx context.Context, t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.tasks {
		if existing.ID == t.ID {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *Store) RequeueRunningTasks(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, t := range s.tasks {
		if t.Status == "running" {
			t.Status = "queued"
			n++
		}
	}
	return n, nil
}

// Tasks returns a snapshot of the queued tasks.
func (s *Store) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out
}

// ApplicationCount returns the number of stored applications.
func (s *Store) ApplicationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.applications)
}

func discardPayload(handle string) []byte {
	return []byte(fmt.Sprintf(`{"handle":%q}`, handle))
}
