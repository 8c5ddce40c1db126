package api

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/jobboard/internal/apperr"
	"github.com/garnizeh/jobboard/internal/auth"
	"github.com/garnizeh/jobboard/internal/listing"
	"github.com/garnizeh/jobboard/pkg/models"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// maxListingBody caps listing request bodies.
const maxListingBody = 64 << 10

type ListingsHandler struct {
	svc          *listing.Service
	createSchema *jsonschema.Schema
	updateSchema *jsonschema.Schema
}

func NewListingsHandler(svc *listing.Service) (*ListingsHandler, error) {
	create, err := loadSchema("schemas/listing_create.json")
	if err != nil {
		return nil, err
	}
	update, err := loadSchema("schemas/listing_update.json")
	if err != nil {
		return nil, err
	}
	return &ListingsHandler{svc: svc, createSchema: create, updateSchema: update}, nil
}

func loadSchema(name string) (*jsonschema.Schema, error) {
	b, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read schema %s: %w", name, err)
	}
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(b, rs); err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return rs, nil
}

type listingMessage struct {
	Message string          `json:"message"`
	Job     *models.Listing `json:"job"`
}

type deletedMessage struct {
	Message string `json:"message"`
	JobID   int64  `json:"jobId"`
}

func (h *ListingsHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	if err := auth.RequireRole(id, models.RoleEmployer); err != nil {
		writeError(w, r, err)
		return
	}

	f, err := readFields(r, h.createSchema)
	if err != nil {
		writeError(w, r, err)
		return
	}

	l, err := h.svc.Create(r.Context(), id, f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, listingMessage{Message: "Job created successfully", Job: l})
}

func (h *ListingsHandler) List(w http.ResponseWriter, r *http.Request) {
	ls, err := h.svc.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

func (h *ListingsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	ls, err := h.svc.ListByOwner(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

func (h *ListingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	listingID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	l, err := h.svc.Get(r.Context(), listingID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *ListingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	listingID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := auth.RequireRole(id, models.RoleEmployer); err != nil {
		writeError(w, r, err)
		return
	}

	f, err := readFields(r, h.updateSchema)
	if err != nil {
		writeError(w, r, err)
		return
	}

	l, err := h.svc.Update(r.Context(), listingID, id, f)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, listingMessage{Message: "Job updated successfully", Job: l})
}

func (h *ListingsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	listingID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.svc.Delete(r.Context(), listingID, id); err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, deletedMessage{Message: "Job deleted successfully", JobID: listingID})
}

// readFields validates the body against schema before decoding it.
func readFields(r *http.Request, schema *jsonschema.Schema) (listing.Fields, error) {
	var f listing.Fields

	body, err := io.ReadAll(io.LimitReader(r.Body, maxListingBody+1))
	if err != nil {
		return f, apperr.Wrap(apperr.KindInvalidRequest, err, "could not read request body")
	}
	if len(body) > maxListingBody {
		return f, apperr.New(apperr.KindTooLarge, "request body too large")
	}
	if !json.Valid(body) {
		return f, apperr.InvalidRequest("invalid JSON body")
	}

	keyErrs, err := schema.ValidateBytes(r.Context(), body)
	if err != nil {
		return f, apperr.Wrap(apperr.KindInvalidRequest, err, "invalid request body")
	}
	if len(keyErrs) > 0 {
		msgs := make([]string, 0, len(keyErrs))
		for _, ke := range keyErrs {
			msgs = append(msgs, strings.TrimSpace(ke.PropertyPath+" "+ke.Message))
		}
		return f, apperr.InvalidRequest("invalid fields: " + strings.Join(msgs, "; ")).WithReason("validation_failed")
	}

	if err := json.Unmarshal(body, &f); err != nil {
		return f, apperr.Wrap(apperr.KindInvalidRequest, err, "invalid JSON body")
	}
	return f, nil
}

func pathID(r *http.Request, name string) (int64, error) {
	v, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil || v <= 0 {
		return 0, apperr.InvalidRequest("invalid " + name)
	}
	return v, nil
}
