package access

import (
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/shared/types"
)

// Project returns a copy of c holding only the fields actor's role may see.
// Masked fields are cleared. The stored case is never modified.
func Project(actor auth.Identity, c *domain.Case) *domain.Case {
	if c == nil {
		return nil
	}

	out := *c
	isCreator := !actor.UserID.IsZero() && c.CreatedBy == actor.UserID

	switch actor.Can().SensitiveContentAccess {
	case auth.SensitiveFull, auth.SensitiveFullAssigned:
	case auth.SensitiveLimited:
		out.ChildName = nil
		out.AbuserName = nil
	default:
		if !isCreator {
			out.ChildName = nil
			out.AbuserName = nil
			out.Description = nil
		}
	}

	if c.IsAnonymous && !isCreator {
		out.CreatedBy = types.ID("")
	}
	if out.DirVillageValidation != nil {
		v := *out.DirVillageValidation
		out.DirVillageValidation = &v
	}
	if out.SauvegardeValidation != nil {
		v := *out.SauvegardeValidation
		out.SauvegardeValidation = &v
	}
	return &out
}

// ProjectAll projects every case of a list
func ProjectAll(actor auth.Identity, cases []*domain.Case) []*domain.Case {
	out := make([]*domain.Case, len(cases))
	for i, c := range cases {
		out[i] = Project(actor, c)
	}
	return out
}
