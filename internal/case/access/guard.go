// Package access decides which callers may read which cases, and how much of them.
package access

import (
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/shared/errors"
)

// CanAccess reports whether actor may read c. assigned tells whether the actor
// holds an assignment on the case; it only matters for psychologists.
func CanAccess(actor auth.Identity, c *domain.Case, assigned bool) bool {
	if actor.IsZero() || c == nil {
		return false
	}

	switch actor.Role {
	case auth.RoleDeclarant:
		return c.CreatedBy == actor.UserID
	case auth.RolePsychologist:
		return assigned
	case auth.RoleVillageDirector:
		return actor.InVillage(c.VillageID)
	case auth.RoleSafeguardingOfficer:
		return true
	default:
		// ITAdmin never sees case content; NationalDirector only sees aggregates.
		return false
	}
}

// Decide is CanAccess returning the transport error for a denial.
// The message never tells whether the case exists.
func Decide(actor auth.Identity, c *domain.Case, assigned bool) error {
	if actor.IsZero() {
		return errors.Unauthenticated("authentication required")
	}
	if !CanAccess(actor, c, assigned) {
		return errors.Forbidden("access to this case is denied")
	}
	return nil
}

// Conceal hides a missing case or file from callers who could not read it
// had it existed. Only roles that read every case get NOT_FOUND; everyone
// else gets the denial Decide would have returned.
func Conceal(actor auth.Identity, err error) error {
	if !errors.HasCode(err, errors.CodeNotFound) || actor.IsZero() {
		return err
	}
	if actor.Role == auth.RoleSafeguardingOfficer {
		return err
	}
	return errors.Forbidden("access to this case is denied")
}
