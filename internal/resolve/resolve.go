// Package resolve decides what content an uploaded document contributes to
// extraction: plain text, a binary payload, or nothing.
package resolve

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
)

// Content is one of Text, Binary or NoContent.
type Content interface {
	content()
}

type Text struct {
	Text string
}

type Binary struct {
	Data []byte
	MIME string
}

// NoContent short-circuits the pipeline to a zero-result success.
type NoContent struct {
	Reason string
}

func (Text) content()      {}
func (Binary) content()    {}
func (NoContent) content() {}

// Base64 returns the standard base64 encoding of the payload.
func (b Binary) Base64() string {
	return base64.StdEncoding.EncodeToString(b.Data)
}

// DataURL returns the payload as a data: URL.
func (b Binary) DataURL() string {
	return "data:" + b.MIME + ";base64," + b.Base64()
}

// Input describes the document to resolve.
type Input struct {
	FileName    string
	InlineText  string
	StoragePath string
}

// ObjectGetter reads stored evidence bytes.
type ObjectGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

type Resolver struct {
	objects ObjectGetter
	logger  *slog.Logger
}

func NewResolver(objects ObjectGetter, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{objects: objects, logger: logger}
}

// Resolve performs at most one storage read. Storage failures are logged and
// reported as NoContent rather than returned.
func (r *Resolver) Resolve(ctx context.Context, in Input) Content {
	kind := Classify(in.FileName)
	inline := strings.TrimSpace(in.InlineText)

	if inline != "" && !kind.Binary() {
		return Text{Text: in.InlineText}
	}

	switch kind {
	case KindPDF, KindImage, KindAudio:
		if in.StoragePath == "" {
			if inline != "" {
				return Text{Text: in.InlineText}
			}
			return NoContent{Reason: fmt.Sprintf("no stored file for %s document", kind)}
		}
		data, ok := r.fetch(ctx, in.StoragePath)
		if !ok {
			return NoContent{Reason: "stored file could not be read"}
		}
		if len(data) == 0 {
			return NoContent{Reason: "stored file is empty"}
		}
		return Binary{Data: data, MIME: MIMEFor(in.FileName)}

	case KindText:
		if in.StoragePath == "" {
			return NoContent{Reason: "no text supplied and no stored file"}
		}
		data, ok := r.fetch(ctx, in.StoragePath)
		if !ok {
			return NoContent{Reason: "stored file could not be read"}
		}
		if !utf8.Valid(data) {
			data = []byte(strings.ToValidUTF8(string(data), "�"))
		}
		if strings.TrimSpace(string(data)) == "" {
			return NoContent{Reason: "text file is empty"}
		}
		return Text{Text: string(data)}

	case KindVideo:
		return NoContent{Reason: "video files are not supported for extraction"}
	}

	return NoContent{Reason: fmt.Sprintf("unsupported file type %q", in.FileName)}
}

func (r *Resolver) fetch(ctx context.Context, key string) ([]byte, bool) {
	data, err := r.objects.Get(ctx, key)
	if err != nil {
		r.logger.Warn("storage read failed", "storage_path", key, "error", err)
		return nil, false
	}
	return data, true
}
