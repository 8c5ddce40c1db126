package auth

import (
	"errors"
	"strconv"
	"strings"

	"github.com/garnizeh/jobboard/internal/apperr"
	"github.com/garnizeh/jobboard/pkg/models"
)

// Identity is the verified caller extracted from a bearer token.
type Identity struct {
	ID   int64
	Role models.Role
}

// Guard turns bearer tokens into identities.
type Guard struct {
	issuer *Issuer
}

func NewGuard(issuer *Issuer) *Guard {
	return &Guard{issuer: issuer}
}

// Authenticate verifies token and returns the caller identity. Failures are
// Unauthenticated errors with a token_* reason.
func (g *Guard) Authenticate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, unauthenticated(ReasonTokenMissing, "authentication required", nil)
	}

	claims, err := g.issuer.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, ErrTokenExpired):
			return Identity{}, unauthenticated(ReasonTokenExpired, "token has expired, sign in again", err)
		case errors.Is(err, ErrTokenMalformed):
			return Identity{}, unauthenticated(ReasonTokenMalformed, "token is malformed", err)
		default:
			return Identity{}, unauthenticated(ReasonTokenInvalid, "token is invalid", err)
		}
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return Identity{}, unauthenticated(ReasonTokenInvalid, "token subject is invalid", err)
	}
	if !claims.Role.Valid() {
		return Identity{}, unauthenticated(ReasonTokenInvalid, "token role is invalid", nil)
	}

	return Identity{ID: id, Role: claims.Role}, nil
}

// BearerToken extracts the token from an Authorization header value. An
// empty result means no token was sent; a non-bearer scheme is returned as
// is so verification reports it as malformed.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return header
	}
	return strings.TrimSpace(token)
}

// RequireRole fails with Forbidden when the identity does not hold role.
func RequireRole(id Identity, role models.Role) error {
	if id.Role != role {
		return apperr.Forbidden("this action requires the " + string(role) + " role").WithReason("role_required")
	}
	return nil
}

func unauthenticated(reason, msg string, err error) error {
	return apperr.Wrap(apperr.KindUnauthenticated, err, msg).WithReason(reason)
}
