package models

import "encoding/json"

// Domain models matching the database schema in db/migrations/.

type Role string

const (
	RoleEmployer  Role = "employer"
	RoleCandidate Role = "candidate"
)

func (r Role) Valid() bool {
	return r == RoleEmployer || r == RoleCandidate
}

type User struct {
	ID           int64   `json:"id" db:"id"`
	Email        string  `json:"email" db:"email"`
	PasswordHash string  `json:"-" db:"password_hash"`
	Role         Role    `json:"role" db:"role"`
	CompanyName  *string `json:"company_name,omitempty" db:"company_name"`
	Created      int64   `json:"created" db:"created"`
}

type Listing struct {
	ID          int64   `json:"id" db:"id"`
	EmployerID  int64   `json:"employer_id" db:"employer_id"`
	Title       string  `json:"title" db:"title"`
	Description string  `json:"description" db:"description"`
	CompanyName string  `json:"company_name" db:"company_name"`
	Location    string  `json:"location" db:"location"`
	JobType     *string `json:"job_type,omitempty" db:"job_type"`
	SalaryRange *string `json:"salary_range,omitempty" db:"salary_range"`
	PostedAt    int64   `json:"posted_at" db:"posted_at"`

	// Owner's public profile, populated on joined reads.
	EmployerEmail       string  `json:"employer_email,omitempty"`
	EmployerCompanyName *string `json:"employer_company_name,omitempty"`
}

type Application struct {
	ID           int64   `json:"id" db:"id"`
	JobID        int64   `json:"job_id" db:"job_id"`
	CandidateID  int64   `json:"candidate_id" db:"candidate_id"`
	ResumeHandle string  `json:"resume_handle" db:"resume_handle"`
	CoverLetter  *string `json:"cover_letter,omitempty" db:"cover_letter"`
	AppliedAt    int64   `json:"applied_at" db:"applied_at"`

	// Enrichment from joined reads. Which fields are set depends on the query.
	CandidateEmail string `json:"candidate_email,omitempty"`
	JobTitle       string `json:"job_title,omitempty"`
	JobCompanyName string `json:"job_company_name,omitempty"`
	EmployerID     int64  `json:"employer_id,omitempty"`
}

// TaskBlobDiscard removes a resume blob that no application row references any more.
const TaskBlobDiscard = "blob.discard"

type BlobDiscardPayload struct {
	Handle string `json:"handle"`
}

// Task is a durable background task row.
type Task struct {
	ID          int64           `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt int64           `json:"scheduled_at"`
	NextTryAt   *int64          `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     int64           `json:"created"`
	Updated     int64           `json:"updated"`
}
