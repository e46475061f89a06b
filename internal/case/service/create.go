package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/case/scoring"
	"github.com/sos-villages/signalement/internal/notification"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/metrics"
	"github.com/sos-villages/signalement/internal/shared/types"
	"github.com/sos-villages/signalement/internal/storage"
)

// CreateCaseInput is a declarant's report
type CreateCaseInput struct {
	VillageID    types.ID
	IsAnonymous  bool
	IncidentType domain.IncidentType
	Urgency      domain.Urgency
	AbuserName   string
	ChildName    string
	Description  string
	Attachments  []storage.Upload
}

// CreateCase scores and stores a new case, stores its attachments and assigns
// two psychologists, all in one transaction. When assignment is impossible
// nothing is kept.
func (s *Service) CreateCase(ctx context.Context, actor auth.Identity, in CreateCaseInput) (*domain.Case, error) {
	const op = "create_case"
	if err := requireIdentity(actor); err != nil {
		return nil, s.reject(op, err)
	}
	if !actor.Can().CanCreateCase {
		s.recordDecision(actor, op, false)
		return nil, s.reject(op, errors.Forbidden("this role cannot create cases"))
	}

	villageID := in.VillageID
	if villageID.IsZero() && actor.VillageID != nil {
		villageID = *actor.VillageID
	}
	if actor.VillageID != nil && !villageID.SameAs(actor.VillageID) {
		s.recordDecision(actor, op, false)
		return nil, s.reject(op, errors.Forbidden("cases can only be reported in your own village"))
	}
	s.recordDecision(actor, op, true)

	for _, up := range in.Attachments {
		if up.Body == nil {
			return nil, s.reject(op, errors.BadRequest("attachment has no content"))
		}
		if err := storage.CheckSize(up.Size, s.maxUploadBytes); err != nil {
			return nil, s.reject(op, err)
		}
	}

	var created *domain.Case
	err := s.run(ctx, op, func(ctx context.Context, tx domain.Repository, out *outbox) error {
		now := s.now()

		recurrence, err := tx.HasRecentCaseMatching(ctx, domain.RecurrenceQuery{
			VillageID:  villageID,
			ChildName:  strings.TrimSpace(in.ChildName),
			AbuserName: strings.TrimSpace(in.AbuserName),
			Since:      now.Add(-scoring.RecurrenceWindow),
		})
		if err != nil {
			return err
		}

		score := s.scorer.Score(scoring.Input{
			Urgency:       in.Urgency,
			IncidentType:  in.IncidentType,
			Description:   in.Description,
			HasAttachment: len(in.Attachments) > 0,
			Recurrence:    recurrence,
			CreatedAt:     now,
			At:            now,
		})

		c, err := domain.NewCase(domain.NewCaseParams{
			VillageID:    villageID,
			CreatedBy:    actor.UserID,
			IsAnonymous:  in.IsAnonymous,
			IncidentType: in.IncidentType,
			Urgency:      in.Urgency,
			AbuserName:   in.AbuserName,
			ChildName:    in.ChildName,
			Description:  in.Description,
			Score:        score,
			CreatedAt:    now,
		})
		if err != nil {
			return err
		}
		if err := tx.CreateCase(ctx, c); err != nil {
			return err
		}

		for _, up := range in.Attachments {
			meta, err := s.putFile(ctx, out, storage.AttachmentKey(c.ID, up.FileName), up)
			if err != nil {
				return err
			}
			a := &domain.Attachment{ID: types.NewID(), CaseID: c.ID, File: meta, CreatedAt: now}
			if err := tx.AddAttachment(ctx, a); err != nil {
				return err
			}
		}

		pick, err := s.balancer.Assign(ctx, tx, villageID)
		if err != nil {
			return err
		}
		for _, a := range []*domain.Assignment{
			{ID: types.NewID(), CaseID: c.ID, PsychologistID: pick.Primary, Role: domain.AssignmentPrimary, CreatedAt: now},
			{ID: types.NewID(), CaseID: c.ID, PsychologistID: pick.Secondary, Role: domain.AssignmentSecondary, CreatedAt: now},
		} {
			if err := tx.AddAssignment(ctx, a); err != nil {
				return err
			}
		}

		intents, err := s.notify(ctx, tx, notification.KindCaseAssigned, c.ID, domain.RecipientQuery{
			Role:    auth.RolePsychologist,
			UserIDs: []types.ID{pick.Primary, pick.Secondary},
		}, now)
		if err != nil {
			return err
		}
		out.intents = append(out.intents, intents...)

		if err := s.appendAudit(ctx, tx, out, actor, audit.ActionCreateCase, c.ID, map[string]any{
			"score":       score,
			"recurrence":  recurrence,
			"attachments": len(in.Attachments),
		}); err != nil {
			return err
		}

		out.events = append(out.events, c.GetDomainEvents()...)
		created = c
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordCaseCreated(string(created.IncidentType), string(created.Urgency), created.Score)
	s.logger.Info("case created",
		zap.String("case_id", created.ID.String()),
		zap.String("village_id", created.VillageID.String()),
		zap.Int("score", created.Score),
	)
	return created, nil
}
