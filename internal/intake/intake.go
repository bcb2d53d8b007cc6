// Package intake accepts uploaded files and pasted text, stores the raw
// bytes in the object store and records an evidence upload row.
package intake

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/kalambet/casetrail/internal/blob"
	"github.com/kalambet/casetrail/internal/resolve"
	"github.com/kalambet/casetrail/internal/storage"
)

// PastedTextFileName names the object created for pasted text.
const PastedTextFileName = "pasted-text.txt"

var (
	ErrEmptySubmission     = errors.New("submission has no file data or text")
	ErrAmbiguousSubmission = errors.New("submission has both file data and text")
)

// Submission is one intake request. Exactly one of Data or Text is set.
type Submission struct {
	CaseID      string
	FileName    string
	Data        []byte
	Text        string
	ContentType string
}

type UploadStore interface {
	SaveUpload(ctx context.Context, u storage.Upload) error
}

type Service struct {
	uploads UploadStore
	objects blob.Store
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(uploads UploadStore, objects blob.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uploads: uploads, objects: objects, logger: logger, now: time.Now}
}

// Submit writes the bytes to the object store, then the upload row.
func (s *Service) Submit(ctx context.Context, sub Submission) (storage.Upload, error) {
	hasData := len(sub.Data) > 0
	hasText := strings.TrimSpace(sub.Text) != ""
	switch {
	case !hasData && !hasText:
		return storage.Upload{}, ErrEmptySubmission
	case hasData && hasText:
		return storage.Upload{}, ErrAmbiguousSubmission
	}

	data := sub.Data
	name := SanitizeFileName(sub.FileName)
	contentType := sub.ContentType
	if hasText {
		data = []byte(sub.Text)
		if sub.FileName == "" {
			name = PastedTextFileName
		}
		contentType = "text/plain; charset=utf-8"
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	kind := resolve.Classify(name)
	u := storage.Upload{
		ID:        uuid.NewString(),
		CaseID:    sub.CaseID,
		FileName:  name,
		MimeClass: string(kind),
		SizeBytes: int64(len(data)),
		CreatedAt: s.now(),
	}
	u.StoragePath = blob.Key(u.CaseID, u.ID, name)

	if kind == resolve.KindPDF {
		u.PageCount = countPDFPages(data)
		if u.PageCount == 0 {
			s.logger.Warn("pdf page count unavailable", "file_name", name)
		}
	}

	if err := s.objects.Put(ctx, u.StoragePath, data, contentType); err != nil {
		return storage.Upload{}, fmt.Errorf("storing object: %w", err)
	}
	if err := s.uploads.SaveUpload(ctx, u); err != nil {
		// nothing references the object without its row
		if derr := s.objects.Delete(context.WithoutCancel(ctx), u.StoragePath); derr != nil {
			s.logger.Error("orphaned object not removed", "storage_path", u.StoragePath, "error", derr)
		}
		return storage.Upload{}, fmt.Errorf("saving upload: %w", err)
	}

	s.logger.Info("upload stored", "upload_id", u.ID, "case_id", u.CaseID, "mime_class", u.MimeClass, "size_bytes", u.SizeBytes)
	return u, nil
}

// SanitizeFileName reduces a client supplied name to its base name.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	base := path.Base(name)
	if base == "." || base == "/" || base == ".." || base == "" {
		return "upload.bin"
	}
	return base
}

// countPDFPages returns 0 for documents the reader cannot parse.
func countPDFPages(data []byte) (pages int) {
	// the pdf reader panics on some malformed files
	defer func() {
		if recover() != nil {
			pages = 0
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0
	}
	return r.NumPage()
}
