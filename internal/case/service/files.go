package service

import (
	"context"
	"io"

	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/access"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// File is an open download together with its metadata. Callers must close Content.
type File struct {
	Meta    domain.FileMeta
	Content io.ReadCloser
}

// OpenAttachment opens a declarant attachment if the caller may read its case
func (s *Service) OpenAttachment(ctx context.Context, actor auth.Identity, id types.ID) (*File, error) {
	const op = "download_attachment"
	if err := requireIdentity(actor); err != nil {
		return nil, s.reject(op, err)
	}

	a, err := s.repo.GetAttachment(ctx, id)
	if err != nil {
		return nil, s.reject(op, access.Conceal(actor, err))
	}
	return s.open(ctx, actor, op, a.CaseID, a.File)
}

// OpenDocument opens a psychologist document if the caller may read its case
func (s *Service) OpenDocument(ctx context.Context, actor auth.Identity, id types.ID) (*File, error) {
	const op = "download_document"
	if err := requireIdentity(actor); err != nil {
		return nil, s.reject(op, err)
	}

	d, err := s.repo.GetDocument(ctx, id)
	if err != nil {
		return nil, s.reject(op, access.Conceal(actor, err))
	}
	return s.open(ctx, actor, op, d.CaseID, d.File)
}

func (s *Service) open(ctx context.Context, actor auth.Identity, op string, caseID types.ID, meta domain.FileMeta) (*File, error) {
	if _, err := s.guardedCase(ctx, s.repo, actor, caseID, op); err != nil {
		return nil, s.reject(op, err)
	}

	content, err := s.files.Open(ctx, meta.Path)
	if err != nil {
		return nil, s.reject(op, err)
	}
	return &File{Meta: meta, Content: content}, nil
}
