package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/jobboard/api"
	dbfs "github.com/garnizeh/jobboard/db"
	"github.com/garnizeh/jobboard/internal/application"
	"github.com/garnizeh/jobboard/internal/auth"
	"github.com/garnizeh/jobboard/internal/blob"
	"github.com/garnizeh/jobboard/internal/config"
	"github.com/garnizeh/jobboard/internal/db"
	"github.com/garnizeh/jobboard/internal/listing"
	"github.com/garnizeh/jobboard/internal/repository/sqlite"
)

const testSecret = "testsecret"

var pdfResume = []byte("%PDF-1.4\n%test resume\n%%EOF\n")

type testEnv struct {
	router *mux.Router
	repo   *sqlite.SQLiteRepo
	cfg    *config.Config
	issuer *auth.Issuer
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Env:               "development",
		JWTSecret:         testSecret,
		TokenDuration:     time.Hour,
		CORSOrigin:        "*",
		PasswordMinLength: 6,
		ListingUpdateMode: config.UpdateModeReplace,
		Blob: config.BlobConfig{
			Backend:      config.BackendLocal,
			UploadDir:    filepath.Join(t.TempDir(), "uploads"),
			MaxBytes:     4096,
			SniffContent: true,
		},
	}
}

func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()
	ctx := context.Background()

	cfg := testConfig(t)
	for _, m := range mutate {
		m(cfg)
	}

	conn, err := db.New(ctx, db.FileDSN(filepath.Join(t.TempDir(), "api.db")), nil)
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := db.Migrate(ctx, conn, dbfs.Migrations); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := sqlite.New(conn, nil)

	stager, err := blob.NewLocalStager(cfg.Blob.UploadDir, blob.Policy{MaxBytes: cfg.Blob.MaxBytes, Sniff: cfg.Blob.SniffContent})
	if err != nil {
		t.Fatalf("NewLocalStager: %v", err)
	}

	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.TokenDuration)
	listings, err := listing.NewService(repo, listing.UpdateMode(cfg.ListingUpdateMode), nil)
	if err != nil {
		t.Fatalf("listing.NewService: %v", err)
	}

	router, err := api.SetupRoutes(cfg, "test", "now", api.Services{
		Auth:         auth.NewService(repo, issuer, auth.NewHasher(bcrypt.MinCost), auth.PasswordPolicy{MinLength: cfg.PasswordMinLength}, nil),
		Guard:        auth.NewGuard(issuer),
		Listings:     listings,
		Applications: application.NewService(repo, repo, repo, stager, nil),
		Ping:         func(ctx context.Context) error { return conn.GetConn().PingContext(ctx) },
	})
	if err != nil {
		t.Fatalf("SetupRoutes: %v", err)
	}

	return &testEnv{router: router, repo: repo, cfg: cfg, issuer: issuer}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "192.0.2.1:1234"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, v any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if v != nil {
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(b)
	}
	return e.do(t, method, path, token, body, "application/json")
}

type registered struct {
	token string
	id    int64
}

func (e *testEnv) register(t *testing.T, email, role, company string) registered {
	t.Helper()
	body := map[string]string{"email": email, "password": "s3cret!", "role": role}
	if company != "" {
		body["companyName"] = company
	}
	w := e.doJSON(t, http.MethodPost, "/api/auth/register", "", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
		User  struct {
			ID int64 `json:"id"`
		} `json:"user"`
	}
	decode(t, w, &resp)
	return registered{token: resp.Token, id: resp.User.ID}
}

func (e *testEnv) createJob(t *testing.T, token, title string) int64 {
	t.Helper()
	w := e.doJSON(t, http.MethodPost, "/api/jobs", token, map[string]string{
		"title":        title,
		"description":  "Build services",
		"company_name": "Acme",
		"location":     "Remote",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create job: %d %s", w.Code, w.Body.String())
	}
	var resp struct {
		Job struct {
			ID int64 `json:"id"`
		} `json:"job"`
	}
	decode(t, w, &resp)
	return resp.Job.ID
}

type upload struct {
	jobID       string
	coverLetter string
	file        []byte
	fileType    string
	noFile      bool
}

func (e *testEnv) apply(t *testing.T, token string, u upload) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if u.jobID != "" {
		_ = mw.WriteField("jobId", u.jobID)
	}
	if u.coverLetter != "" {
		_ = mw.WriteField("cover_letter", u.coverLetter)
	}
	if !u.noFile {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="resume"; filename="cv"`)
		h.Set("Content-Type", u.fileType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("CreatePart: %v", err)
		}
		_, _ = part.Write(u.file)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return e.do(t, http.MethodPost, "/api/applications", token, &buf, mw.FormDataContentType())
}

func pdfUpload(jobID int64) upload {
	return upload{jobID: fmt.Sprint(jobID), file: pdfResume, fileType: blob.TypePDF}
}

// uploads returns the files currently held by the local stager.
func (e *testEnv) uploads(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(e.cfg.Blob.UploadDir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	var names []string
	for _, en := range entries {
		names = append(names, en.Name())
	}
	return names
}

type errorResponse struct {
	Error struct {
		Kind    string `json:"kind"`
		Reason  string `json:"reason"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int, kind string) errorResponse {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	var er errorResponse
	decode(t, w, &er)
	if er.Error.Kind != kind {
		t.Fatalf("expected kind %q, got %q (%s)", kind, er.Error.Kind, er.Error.Message)
	}
	return er
}
