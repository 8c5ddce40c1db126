package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/garnizeh/jobboard/internal/apperr"
	"github.com/garnizeh/jobboard/internal/application"
	"github.com/garnizeh/jobboard/internal/auth"
	"github.com/garnizeh/jobboard/internal/blob"
	"github.com/garnizeh/jobboard/pkg/models"
)

// multipartMemory is the part of a multipart form kept in memory; the rest
// spills to temporary files.
const multipartMemory = 1 << 20

// formOverhead is allowed on top of the file limit for the other form parts.
const formOverhead = 64 << 10

type ApplicationsHandler struct {
	svc      *application.Service
	maxBytes int64
}

func NewApplicationsHandler(svc *application.Service, maxFileBytes int64) *ApplicationsHandler {
	if maxFileBytes <= 0 {
		maxFileBytes = blob.DefaultMaxBytes
	}
	return &ApplicationsHandler{svc: svc, maxBytes: maxFileBytes}
}

type applicationMessage struct {
	Message     string              `json:"message"`
	Application *models.Application `json:"application"`
}

func (h *ApplicationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	if err := auth.RequireRole(id, models.RoleCandidate); err != nil {
		writeError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+formOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, r, apperr.Wrap(apperr.KindTooLarge, err, "resume file is too large").WithReason("file_too_large"))
			return
		}
		writeError(w, r, apperr.Wrap(apperr.KindInvalidRequest, err, "expected a multipart form"))
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			logger.Warn("remove multipart temp files", slog.Any("err", err))
		}
	}()

	in := application.SubmitInput{}
	if v := strings.TrimSpace(r.FormValue("jobId")); v != "" {
		jobID, err := strconv.ParseInt(v, 10, 64)
		if err != nil || jobID <= 0 {
			writeError(w, r, apperr.InvalidRequest("jobId must be a positive integer").WithReason("job_id_invalid"))
			return
		}
		in.JobID = jobID
	}
	if v := r.FormValue("cover_letter"); v != "" {
		in.CoverLetter = &v
	}

	file, fh, err := r.FormFile("resume")
	switch {
	case err == nil:
		defer file.Close()
		in.Resume = &application.Upload{
			Body:        file,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Filename:    fh.Filename,
		}
	case errors.Is(err, http.ErrMissingFile):
	default:
		writeError(w, r, apperr.Wrap(apperr.KindInvalidRequest, err, "could not read resume file"))
		return
	}

	a, err := h.svc.Submit(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, applicationMessage{Message: "Application submitted successfully", Application: a})
}

func (h *ApplicationsHandler) ListForJob(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	jobID, err := pathID(r, "jobId")
	if err != nil {
		writeError(w, r, err)
		return
	}

	apps, err := h.svc.ListForJob(r.Context(), jobID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (h *ApplicationsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	apps, err := h.svc.ListMine(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apps)
}

func (h *ApplicationsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	appID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	a, err := h.svc.GetDetails(r.Context(), appID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Resume streams the stored resume of an application.
func (h *ApplicationsHandler) Resume(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	appID, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	rc, a, err := h.svc.OpenResume(r.Context(), appID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", blob.ContentType(a.ResumeHandle))
	w.Header().Set("Content-Disposition", `attachment; filename="`+a.ResumeHandle+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("stream resume",
			slog.Int64("application_id", a.ID),
			slog.Any("err", err),
		)
	}
}
