package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/access"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/notification"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/metrics"
	"github.com/sos-villages/signalement/internal/shared/types"
	"github.com/sos-villages/signalement/internal/storage"
)

// UpdateCaseStatus applies a psychologist-driven transition. Only a
// psychologist assigned to the case may call it.
func (s *Service) UpdateCaseStatus(ctx context.Context, actor auth.Identity, caseID types.ID, to domain.CaseStatus) (*domain.Case, error) {
	const op = "update_status"
	if err := requireIdentity(actor); err != nil {
		return nil, s.reject(op, err)
	}
	if !to.Valid() {
		return nil, s.reject(op, errors.BadRequest("unknown case status"))
	}
	caps := actor.Can()
	allowed := caps.CanWriteCaseDocuments
	if to == domain.CaseStatusClosed {
		allowed = caps.CanCloseCase
	}
	if !allowed {
		s.recordDecision(actor, op, false)
		return nil, s.reject(op, errors.Forbidden("only an assigned psychologist can change the case status"))
	}

	var updated *domain.Case
	var from domain.CaseStatus
	err := s.run(ctx, op, func(ctx context.Context, tx domain.Repository, out *outbox) error {
		if err := s.requireAssignment(ctx, tx, actor, caseID, op); err != nil {
			return err
		}

		c, err := tx.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		from = c.Status

		now := s.now()
		if err := c.ChangeStatus(to, actor.UserID, now); err != nil {
			return err
		}

		ok, err := tx.UpdateStatus(ctx, caseID, from, to, now)
		if err != nil {
			return err
		}
		if !ok {
			return errors.StateConflict(errors.CodeInvalidCaseStatus, "the case status changed concurrently")
		}

		if err := s.appendAudit(ctx, tx, out, actor, audit.ActionPsyUpdateStatus, caseID, map[string]any{
			"status": string(to),
		}); err != nil {
			return err
		}

		out.events = append(out.events, c.GetDomainEvents()...)
		updated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordCaseStatusChange(string(from), string(to))
	s.logger.Info("case status changed",
		zap.String("case_id", caseID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return access.Project(actor, updated), nil
}

// UploadCaseDocument stores a psychologist report on a case in progress.
// Village directors are notified when the case becomes document-complete.
func (s *Service) UploadCaseDocument(ctx context.Context, actor auth.Identity, caseID types.ID, docType domain.DocType, up storage.Upload) (*domain.Document, error) {
	const op = "upload_document"
	if err := requireIdentity(actor); err != nil {
		return nil, s.reject(op, err)
	}
	if !actor.Can().CanWriteCaseDocuments {
		s.recordDecision(actor, op, false)
		return nil, s.reject(op, errors.Forbidden("only an assigned psychologist can upload documents"))
	}
	if !docType.Valid() {
		return nil, s.reject(op, errors.Input(errors.CodeUnknownDocType, "unknown document type"))
	}
	if up.Body == nil {
		return nil, s.reject(op, errors.BadRequest("file is required"))
	}
	if err := storage.CheckSize(up.Size, s.maxUploadBytes); err != nil {
		return nil, s.reject(op, err)
	}

	var doc *domain.Document
	err := s.run(ctx, op, func(ctx context.Context, tx domain.Repository, out *outbox) error {
		if err := s.requireAssignment(ctx, tx, actor, caseID, op); err != nil {
			return err
		}

		c, err := tx.GetCase(ctx, caseID)
		if err != nil {
			return err
		}
		if err := c.CheckDocumentUpload(); err != nil {
			return err
		}

		now := s.now()
		meta, err := s.putFile(ctx, out, storage.DocumentKey(caseID, up.FileName), up)
		if err != nil {
			return err
		}
		d := domain.Document{
			ID:         types.NewID(),
			CaseID:     caseID,
			DocType:    docType,
			UploadedBy: actor.UserID,
			File:       meta,
			CreatedAt:  now,
		}
		if err := c.AddDocument(d, now); err != nil {
			return err
		}
		if err := tx.AddDocument(ctx, &d); err != nil {
			return err
		}

		if err := s.appendAudit(ctx, tx, out, actor, audit.ActionPsyUploadDocument, caseID, map[string]any{
			"docType": string(docType),
		}); err != nil {
			return err
		}

		docs, err := tx.ListDocuments(ctx, caseID)
		if err != nil {
			return err
		}
		if domain.IsDocumentComplete(docs) {
			villageID := c.VillageID
			intents, err := s.notify(ctx, tx, notification.KindCaseDocsReady, caseID, domain.RecipientQuery{
				Role:      auth.RoleVillageDirector,
				VillageID: &villageID,
			}, now)
			if err != nil {
				return err
			}
			out.intents = append(out.intents, intents...)
		}

		out.events = append(out.events, c.GetDomainEvents()...)
		doc = &d
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordDocumentUploaded(string(docType))
	return doc, nil
}

// ValidateCaseAsDirector records the village director's signed approval and
// notifies the safeguarding officers
func (s *Service) ValidateCaseAsDirector(ctx context.Context, actor auth.Identity, caseID types.ID, signature *storage.Upload) (*domain.Case, error) {
	const op = "validate_director"
	if err := requireIdentity(actor); err != nil {
		return nil, s.reject(op, err)
	}
	if actor.Role != auth.RoleVillageDirector || !actor.Can().CanApproveValidation {
		s.recordDecision(actor, op, false)
		return nil, s.reject(op, errors.Forbidden("only the village director can give this validation"))
	}

	var validated *domain.Case
	err := s.run(ctx, op, func(ctx context.Context, tx domain.Repository, out *outbox) error {
		c, err := s.guardedCase(ctx, tx, actor, caseID, op)
		if err != nil {
			return err
		}

		docs, err := tx.ListDocuments(ctx, caseID)
		if err != nil {
			return err
		}
		if err := c.CheckDirectorValidation(docs); err != nil {
			return err
		}

		key, err := s.putSignature(ctx, out, caseID, storage.SignatureDirVillage, signature)
		if err != nil {
			return err
		}

		now := s.now()
		if err := c.ValidateAsDirector(actor.UserID, docs, key, now); err != nil {
			return err
		}
		ok, err := tx.RecordDirectorValidation(ctx, caseID, *c.DirVillageValidation)
		if err != nil {
			return err
		}
		if !ok {
			return errors.StateConflict(errors.CodeAlreadyValidated, "case already validated by the village director")
		}

		if err := s.appendAudit(ctx, tx, out, actor, audit.ActionDirVillageValidateCase, caseID, nil); err != nil {
			return err
		}

		intents, err := s.notify(ctx, tx, notification.KindCaseDirValidated, caseID, domain.RecipientQuery{
			Role: auth.RoleSafeguardingOfficer,
		}, now)
		if err != nil {
			return err
		}
		out.intents = append(out.intents, intents...)

		out.events = append(out.events, c.GetDomainEvents()...)
		validated = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordValidation("dir_village")
	s.logger.Info("case validated by village director", zap.String("case_id", caseID.String()))
	return access.Project(actor, validated), nil
}

// ValidateCaseAsSafeguarding records the safeguarding officer's signed
// approval, signs the case and notifies the village psychologists
func (s *Service) ValidateCaseAsSafeguarding(ctx context.Context, actor auth.Identity, caseID types.ID, signature *storage.Upload) (*domain.Case, error) {
	const op = "validate_safeguarding"
	if err := requireIdentity(actor); err != nil {
		return nil, s.reject(op, err)
	}
	if actor.Role != auth.RoleSafeguardingOfficer || !actor.Can().CanApproveValidation {
		s.recordDecision(actor, op, false)
		return nil, s.reject(op, errors.Forbidden("only a safeguarding officer can give this validation"))
	}

	var signed *domain.Case
	err := s.run(ctx, op, func(ctx context.Context, tx domain.Repository, out *outbox) error {
		c, err := s.guardedCase(ctx, tx, actor, caseID, op)
		if err != nil {
			return err
		}

		docs, err := tx.ListDocuments(ctx, caseID)
		if err != nil {
			return err
		}
		if err := c.CheckSafeguardingValidation(docs); err != nil {
			return err
		}

		key, err := s.putSignature(ctx, out, caseID, storage.SignatureSauvegarde, signature)
		if err != nil {
			return err
		}

		now := s.now()
		if err := c.ValidateAsSafeguarding(actor.UserID, docs, key, now); err != nil {
			return err
		}
		ok, err := tx.RecordSafeguardingValidation(ctx, caseID, *c.SauvegardeValidation)
		if err != nil {
			return err
		}
		if !ok {
			return errors.StateConflict(errors.CodeAlreadyValidated, "case already validated by safeguarding")
		}

		if err := s.appendAudit(ctx, tx, out, actor, audit.ActionSauvegardeValidateCase, caseID, nil); err != nil {
			return err
		}

		villageID := c.VillageID
		intents, err := s.notify(ctx, tx, notification.KindCaseSigned, caseID, domain.RecipientQuery{
			Role:      auth.RolePsychologist,
			VillageID: &villageID,
		}, now)
		if err != nil {
			return err
		}
		out.intents = append(out.intents, intents...)

		out.events = append(out.events, c.GetDomainEvents()...)
		signed = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordValidation("sauvegarde")
	metrics.RecordCaseStatusChange(string(domain.CaseStatusInProgress), string(domain.CaseStatusSigned))
	s.logger.Info("case signed", zap.String("case_id", caseID.String()))
	return access.Project(actor, signed), nil
}

func (s *Service) putSignature(ctx context.Context, out *outbox, caseID types.ID, kind storage.SignatureKind, up *storage.Upload) (string, error) {
	if err := storage.CheckSignature(up); err != nil {
		return "", err
	}
	if err := storage.CheckSize(up.Size, s.maxUploadBytes); err != nil {
		return "", err
	}
	meta, err := s.putFile(ctx, out, storage.SignatureKey(caseID, kind, up.FileName), *up)
	if err != nil {
		return "", err
	}
	return meta.Path, nil
}

// requireAssignment denies callers without an assignment on the case. It runs
// before the case is loaded so a denial never reveals whether the case exists.
func (s *Service) requireAssignment(ctx context.Context, tx domain.Repository, actor auth.Identity, caseID types.ID, op string) error {
	assigned, err := isAssigned(ctx, tx, caseID, actor.UserID)
	if err != nil {
		return err
	}
	s.recordDecision(actor, op, assigned)
	if !assigned {
		return errors.Forbidden("you are not assigned to this case")
	}
	return nil
}
