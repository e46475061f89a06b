package access

import (
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/domain"
)

// ListRequest carries the optional filters a caller puts on a role-scoped list
type ListRequest struct {
	Statuses             []domain.CaseStatus
	AwaitingSafeguarding bool
	Limit                int
	Offset               int
}

// Scope turns the access predicate into a list filter for actor.
// ok is false when the actor's role sees no cases at all; callers return an
// empty list, not an error.
func Scope(actor auth.Identity, req ListRequest) (filter domain.ListFilter, ok bool) {
	filter = domain.ListFilter{
		Statuses: req.Statuses,
		Limit:    req.Limit,
		Offset:   req.Offset,
	}

	switch actor.Role {
	case auth.RoleDeclarant:
		userID := actor.UserID
		filter.CreatedBy = &userID
	case auth.RolePsychologist:
		if actor.VillageID == nil {
			return domain.ListFilter{}, false
		}
		userID, villageID := actor.UserID, *actor.VillageID
		filter.AssignedTo = &userID
		filter.VillageID = &villageID
		if len(filter.Statuses) == 0 {
			filter.Statuses = []domain.CaseStatus{
				domain.CaseStatusPending,
				domain.CaseStatusInProgress,
				domain.CaseStatusSigned,
			}
		}
	case auth.RoleVillageDirector:
		if actor.VillageID == nil {
			return domain.ListFilter{}, false
		}
		villageID := *actor.VillageID
		filter.VillageID = &villageID
		if len(filter.Statuses) == 0 {
			filter.Statuses = []domain.CaseStatus{domain.CaseStatusInProgress}
		}
	case auth.RoleSafeguardingOfficer:
		filter.AwaitingSafeguarding = req.AwaitingSafeguarding
	default:
		return domain.ListFilter{}, false
	}

	filter.Normalize()
	return filter, true
}
