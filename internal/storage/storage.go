// Package storage keeps case files (attachments, documents, signatures) in an object store.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// Upload is a file received from a caller
type Upload struct {
	FileName string
	MimeType string
	Size     int64
	Body     io.Reader
}

// Object describes a stored file
type Object struct {
	Key      string
	FileName string
	MimeType string
	Size     int64
}

// FileStore stores and serves file payloads. Callers persist only the key.
type FileStore interface {
	Put(ctx context.Context, key string, up Upload) (Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Remove(ctx context.Context, key string) error
}

// SignatureKind names which validation a signature belongs to
type SignatureKind string

const (
	SignatureDirVillage SignatureKind = "dir_village"
	SignatureSauvegarde SignatureKind = "sauvegarde"
)

// AttachmentKey is the object key of a declarant attachment
func AttachmentKey(caseID types.ID, fileName string) string {
	return objectKey(caseID, "attachments", fileName)
}

// DocumentKey is the object key of a psychologist document
func DocumentKey(caseID types.ID, fileName string) string {
	return objectKey(caseID, "documents", fileName)
}

// SignatureKey is the object key of a validation signature
func SignatureKey(caseID types.ID, kind SignatureKind, fileName string) string {
	return objectKey(caseID, path.Join("signatures", string(kind)), fileName)
}

func objectKey(caseID types.ID, folder, fileName string) string {
	return path.Join("cases", caseID.String(), folder, types.NewID().String()+"_"+SafeName(fileName))
}

// SafeName reduces a client file name to a safe base name
func SafeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	safe := strings.Trim(b.String(), "._")
	if safe == "" {
		return "file"
	}
	if len(safe) > 120 {
		safe = safe[len(safe)-120:]
	}
	return safe
}

// CheckSize rejects payloads over max bytes
func CheckSize(size, max int64) error {
	if max > 0 && size > max {
		return errors.Input(errors.CodeFileTooLarge, fmt.Sprintf("file exceeds %d MB", max/(1024*1024)))
	}
	return nil
}

// CheckSignature accepts images and PDFs. A PDF may be recognized by its name
// when the client sent a generic mime type.
func CheckSignature(up *Upload) error {
	if up == nil || up.Body == nil || up.Size == 0 {
		return errors.Input(errors.CodeSignatureRequired, "signature is required")
	}
	mime := strings.ToLower(strings.TrimSpace(up.MimeType))
	if strings.HasPrefix(mime, "image/") || mime == "application/pdf" {
		return nil
	}
	if strings.HasSuffix(strings.ToLower(up.FileName), ".pdf") {
		return nil
	}
	return errors.Input(errors.CodeSignatureUnsupported, "signature must be an image or a PDF")
}
