package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/garnizeh/jobboard/internal/apperr"
	"github.com/garnizeh/jobboard/pkg/models"
	"github.com/garnizeh/jobboard/pkg/repository"
)

// RegisterInput carries the registration form. CompanyName is required for
// employers and must be empty for candidates.
type RegisterInput struct {
	Email       string
	Password    string
	Role        models.Role
	CompanyName string
}

// Service implements registration and login on top of the user store.
type Service struct {
	users  repository.UserRepo
	issuer *Issuer
	hasher *Hasher
	policy PasswordPolicy
	logger *slog.Logger
}

func NewService(users repository.UserRepo, issuer *Issuer, hasher *Hasher, policy PasswordPolicy, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{users: users, issuer: issuer, hasher: hasher, policy: policy, logger: logger}
}

// Register creates the user and returns a token for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (string, *models.User, error) {
	if in.Email == "" || in.Password == "" {
		return "", nil, apperr.InvalidRequest("email and password are required")
	}
	if !in.Role.Valid() {
		return "", nil, apperr.InvalidRequest("role must be employer or candidate")
	}
	if in.Role == models.RoleEmployer && in.CompanyName == "" {
		return "", nil, apperr.InvalidRequest("company name is required for employers")
	}
	if err := s.policy.Check(in.Password); err != nil {
		reason := "weak_password"
		if errors.Is(err, ErrPasswordTooLong) {
			reason = "password_too_long"
		}
		return "", nil, apperr.Wrap(apperr.KindInvalidRequest, err, err.Error()).WithReason(reason)
	}

	existing, err := s.users.GetUserByEmail(ctx, in.Email)
	if err != nil {
		return "", nil, apperr.Internal(err, "lookup user")
	}
	if existing != nil {
		return "", nil, apperr.InvalidRequest("user already exists").WithReason("email_taken")
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return "", nil, apperr.Internal(err, "hash password")
	}

	u := &models.User{Email: in.Email, PasswordHash: hash, Role: in.Role}
	if in.Role == models.RoleEmployer {
		company := in.CompanyName
		u.CompanyName = &company
	}
	if _, err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, repository.ErrUniqueViolation) {
			return "", nil, apperr.InvalidRequest("user already exists").WithReason("email_taken")
		}
		return "", nil, apperr.Internal(err, "create user")
	}

	token, err := s.issuer.Issue(u)
	if err != nil {
		return "", nil, apperr.Internal(err, "sign token")
	}
	s.logger.Info("user registered", slog.Int64("user_id", u.ID), slog.String("role", string(u.Role)))

	return token, u, nil
}

// Login verifies the credentials. Unknown email and wrong password yield the
// same error.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	if email == "" || password == "" {
		return "", nil, apperr.InvalidRequest("email and password are required")
	}

	// No stored hash can match a password bcrypt refuses to hash.
	if len(password) > MaxPasswordBytes {
		return "", nil, invalidCredentials()
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return "", nil, apperr.Internal(err, "lookup user")
	}
	if u == nil {
		return "", nil, invalidCredentials()
	}
	if err := s.hasher.Verify(u.PasswordHash, password); err != nil {
		if errors.Is(err, ErrPasswordMismatch) {
			return "", nil, invalidCredentials()
		}
		return "", nil, apperr.Internal(err, "verify password")
	}

	token, err := s.issuer.Issue(u)
	if err != nil {
		return "", nil, apperr.Internal(err, "sign token")
	}

	return token, u, nil
}

func invalidCredentials() error {
	return apperr.InvalidRequest("invalid credentials").WithReason("invalid_credentials")
}
