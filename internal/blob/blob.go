// Package blob stores resume files. A Stager writes an uploaded file under a
// fresh handle and can later open, list or discard it; the local disk and S3
// backends share the same validation.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/garnizeh/jobboard/internal/apperr"
)

// DefaultMaxBytes is the upload limit when none is configured.
const DefaultMaxBytes int64 = 5 << 20

const (
	TypePDF  = "application/pdf"
	TypeDOC  = "application/msword"
	TypeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// allowed maps each accepted declared type to its file extension.
var allowed = map[string]string{
	TypePDF:  ".pdf",
	TypeDOC:  ".doc",
	TypeDOCX: ".docx",
}

// sniffCompatible lists detected types that may stand for a declared one.
// Detection only sees the file head, so a DOCX can look like a plain zip
// archive and a DOC like a bare OLE container.
var sniffCompatible = map[string][]string{
	TypePDF:  {TypePDF},
	TypeDOC:  {TypeDOC, "application/x-ole-storage"},
	TypeDOCX: {TypeDOCX, "application/zip"},
}

var handlePattern = regexp.MustCompile(`^resume-[0-9]+-[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}\.(pdf|doc|docx)$`)

// ErrInvalidHandle is returned for handles this package did not mint.
var ErrInvalidHandle = errors.New("blob: invalid handle")

// Info describes a stored blob.
type Info struct {
	Handle  string
	Size    int64
	ModTime time.Time
}

// Stager is the blob storage contract used by the application workflow.
type Stager interface {
	// Stage validates and durably writes body, returning its handle.
	// Failures are UnsupportedType, TooLarge or Internal errors.
	Stage(ctx context.Context, body io.Reader, declaredType string, size int64) (string, error)
	// Discard removes the blob. A blob that is already gone is not an error.
	Discard(ctx context.Context, handle string) error
	// Open returns the blob content. The caller closes it.
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
	// List returns every blob currently stored.
	List(ctx context.Context) ([]Info, error)
}

// Policy holds the checks shared by all backends.
type Policy struct {
	MaxBytes int64
	Sniff    bool
}

func (p Policy) maxBytes() int64 {
	if p.MaxBytes <= 0 {
		return DefaultMaxBytes
	}
	return p.MaxBytes
}

// admit checks the declared type and size and, when sniffing is enabled,
// the content head. It returns a reader yielding the full body and the
// extension for the handle.
func (p Policy) admit(body io.Reader, declaredType string, size int64) (io.Reader, string, error) {
	ext, ok := allowed[declaredType]
	if !ok {
		return nil, "", apperr.New(apperr.KindUnsupportedType, "only PDF, DOC and DOCX files are accepted").WithReason("mime_not_allowed")
	}
	if size > p.maxBytes() {
		return nil, "", tooLarge(p.maxBytes())
	}
	if body == nil {
		return nil, "", apperr.InvalidRequest("file content is missing")
	}
	if !p.Sniff {
		return body, ext, nil
	}

	head := make([]byte, 3072)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", apperr.Internal(err, "read upload")
	}
	head = head[:n]

	detected := mimetype.Detect(head)
	if !compatible(declaredType, detected) {
		return nil, "", apperr.New(apperr.KindUnsupportedType,
			fmt.Sprintf("file content looks like %s, not %s", detected.String(), declaredType)).WithReason("content_mismatch")
	}

	return io.MultiReader(bytes.NewReader(head), body), ext, nil
}

func compatible(declared string, detected *mimetype.MIME) bool {
	for m := detected; m != nil; m = m.Parent() {
		for _, want := range sniffCompatible[declared] {
			if m.Is(want) {
				return true
			}
		}
	}
	return false
}

// copyLimited copies body to w and fails with TooLarge once more than limit
// bytes arrive. It never writes a truncated file silently.
func copyLimited(w io.Writer, body io.Reader, limit int64) (int64, error) {
	n, err := io.Copy(w, io.LimitReader(body, limit+1))
	if err != nil {
		return n, apperr.Internal(err, "write blob")
	}
	if n > limit {
		return n, tooLarge(limit)
	}
	return n, nil
}

func tooLarge(limit int64) error {
	return apperr.New(apperr.KindTooLarge, fmt.Sprintf("file exceeds the %d byte limit", limit)).WithReason("file_too_large")
}

func newHandle(ext string) string {
	return fmt.Sprintf("resume-%d-%s%s", time.Now().UnixNano(), uuid.NewString(), ext)
}

// ValidHandle reports whether h has the shape of a handle minted by Stage.
func ValidHandle(h string) bool {
	return handlePattern.MatchString(h)
}

// ContentType returns the MIME type implied by the handle extension.
func ContentType(h string) string {
	ext := path.Ext(h)
	for typ, e := range allowed {
		if e == ext {
			return typ
		}
	}
	return "application/octet-stream"
}
