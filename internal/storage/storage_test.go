package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

func TestSafeName(t *testing.T) {
	tests := map[string]string{
		"rapport.pdf":           "rapport.pdf",
		"../../etc/passwd":      "passwd",
		`C:\Users\x\fiche.docx`: "fiche.docx",
		"fiche initiale é.pdf":  "fiche_initiale__.pdf",
		"...":                   "file",
		"":                      "file",
	}
	for in, want := range tests {
		if got := SafeName(in); got != want {
			t.Errorf("SafeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestKeys(t *testing.T) {
	caseID := types.NewID()
	prefix := "cases/" + caseID.String() + "/"

	if k := AttachmentKey(caseID, "photo.jpg"); !strings.HasPrefix(k, prefix+"attachments/") || !strings.HasSuffix(k, "_photo.jpg") {
		t.Errorf("Unexpected attachment key %s", k)
	}
	if k := DocumentKey(caseID, "r.pdf"); !strings.HasPrefix(k, prefix+"documents/") {
		t.Errorf("Unexpected document key %s", k)
	}
	if k := SignatureKey(caseID, SignatureSauvegarde, "s.png"); !strings.HasPrefix(k, prefix+"signatures/sauvegarde/") {
		t.Errorf("Unexpected signature key %s", k)
	}
	if AttachmentKey(caseID, "a") == AttachmentKey(caseID, "a") {
		t.Error("Expected unique keys for the same name")
	}
}

func TestCheckSignature(t *testing.T) {
	body := strings.NewReader("x")
	tests := []struct {
		name string
		up   *Upload
		code string
	}{
		{"missing", nil, errors.CodeSignatureRequired},
		{"empty", &Upload{FileName: "s.png", MimeType: "image/png", Body: body}, errors.CodeSignatureRequired},
		{"png", &Upload{FileName: "s.png", MimeType: "image/png", Size: 1, Body: body}, ""},
		{"pdf", &Upload{FileName: "s", MimeType: "application/pdf", Size: 1, Body: body}, ""},
		{"pdf by name", &Upload{FileName: "S.PDF", MimeType: "application/octet-stream", Size: 1, Body: body}, ""},
		{"word", &Upload{FileName: "s.docx", MimeType: "application/msword", Size: 1, Body: body}, errors.CodeSignatureUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckSignature(tt.up)
			if tt.code == "" {
				if err != nil {
					t.Errorf("Expected accepted, got %v", err)
				}
				return
			}
			if !errors.HasCode(err, tt.code) {
				t.Errorf("Expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestCheckSize(t *testing.T) {
	if err := CheckSize(50<<20, 50<<20); err != nil {
		t.Errorf("Expected limit inclusive, got %v", err)
	}
	if err := CheckSize(50<<20+1, 50<<20); !errors.HasCode(err, errors.CodeFileTooLarge) {
		t.Errorf("Expected FILE_TOO_LARGE, got %v", err)
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	obj, err := s.Put(ctx, "cases/1/documents/a.pdf", Upload{FileName: "a.pdf", MimeType: "application/pdf", Body: strings.NewReader("hello")})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if obj.Size != 5 {
		t.Errorf("Expected size 5, got %d", obj.Size)
	}

	rc, err := s.Open(ctx, obj.Key)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "hello" {
		t.Errorf("Unexpected content %q", data)
	}

	s.Remove(ctx, obj.Key)
	if _, err := s.Open(ctx, obj.Key); !errors.HasCode(err, errors.CodeNotFound) {
		t.Errorf("Expected NOT_FOUND after remove, got %v", err)
	}

	s.SetFailPut(true)
	if _, err := s.Put(ctx, "k", Upload{Body: strings.NewReader("")}); !errors.HasCode(err, errors.CodeStoreUnavailable) {
		t.Errorf("Expected STORE_UNAVAILABLE, got %v", err)
	}
}
