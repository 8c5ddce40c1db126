package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/garnizeh/jobboard/internal/apperr"
	"github.com/garnizeh/jobboard/internal/auth"
	"github.com/garnizeh/jobboard/pkg/models"
)

// maxAuthBody caps register and login request bodies.
const maxAuthBody = 16 << 10

type AuthHandler struct {
	svc       *auth.Service
	validator *validator.Validate
}

// NewAuthHandler creates a new AuthHandler with required dependencies.
func NewAuthHandler(svc *auth.Service) *AuthHandler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	return &AuthHandler{svc: svc, validator: v}
}

type registerRequest struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required"`
	Role        string `json:"role" validate:"required,oneof=employer candidate"`
	CompanyName string `json:"companyName" validate:"required_if=Role employer"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type userResponse struct {
	ID          int64       `json:"id"`
	Email       string      `json:"email"`
	Role        models.Role `json:"role"`
	CompanyName *string     `json:"companyName"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Role: u.Role, CompanyName: u.CompanyName}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	token, u, err := h.svc.Register(r.Context(), auth.RegisterInput{
		Email:       strings.TrimSpace(req.Email),
		Password:    req.Password,
		Role:        models.Role(req.Role),
		CompanyName: strings.TrimSpace(req.CompanyName),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: newUserResponse(u)})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	token, u, err := h.svc.Login(r.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: newUserResponse(u)})
}

// decode reads a JSON body into dst and runs its validate tags.
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAuthBody)).Decode(dst); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return apperr.Wrap(apperr.KindTooLarge, err, "request body too large").WithReason("body_too_large")
		}
		return apperr.Wrap(apperr.KindInvalidRequest, err, "invalid JSON body")
	}
	if err := h.validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" ("+fe.Tag()+")")
			}
			return apperr.InvalidRequest("invalid fields: " + strings.Join(fields, ", ")).WithReason("validation_failed")
		}
		return apperr.Wrap(apperr.KindInvalidRequest, err, "invalid request")
	}
	return nil
}
