package auth

import "github.com/sos-villages/signalement/internal/shared/types"

// Identity is an authenticated caller: who they are, their role and their
// village affiliation. It is built by the JWT middleware and passed to every
// case operation.
type Identity struct {
	UserID    types.ID  `json:"user_id"`
	Role      Role      `json:"role"`
	VillageID *types.ID `json:"village_id,omitempty"`
}

// IsZero reports whether the identity is missing.
func (i Identity) IsZero() bool {
	return i.UserID.IsZero() || i.Role == ""
}

// Can returns the capability set of the caller's role.
func (i Identity) Can() Capabilities {
	return Permissions(i.Role)
}

// InVillage reports whether the caller belongs to the given village.
func (i Identity) InVillage(villageID types.ID) bool {
	return villageID.SameAs(i.VillageID)
}
