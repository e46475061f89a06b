// Package auth provides the role model and the static permission matrix.
package auth

import "fmt"

// Role represents a user role in the system. Every user holds exactly one.
type Role string

const (
	RoleDeclarant           Role = "DECLARANT"
	RolePsychologist        Role = "PSY"
	RoleVillageDirector     Role = "DIR_VILLAGE"
	RoleSafeguardingOfficer Role = "RESPONSABLE_SAUVEGARDE"
	RoleNationalDirector    Role = "DIR_NATIONAL"
	RoleITAdmin             Role = "ADMIN_IT"
)

// Roles returns every known role, in hierarchy order.
func Roles() []Role {
	return []Role{
		RoleDeclarant,
		RolePsychologist,
		RoleVillageDirector,
		RoleSafeguardingOfficer,
		RoleNationalDirector,
		RoleITAdmin,
	}
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := matrix[r]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// RequiresVillage reports whether users of this role must belong to a village.
// Roles that don't require one must not have one.
func (r Role) RequiresVillage() bool {
	switch r {
	case RoleDeclarant, RolePsychologist, RoleVillageDirector:
		return true
	default:
		return false
	}
}

// SensitiveAccess is how much of a case's sensitive content a role may read.
type SensitiveAccess string

const (
	SensitiveNone         SensitiveAccess = "none"
	SensitiveLimited      SensitiveAccess = "limited"
	SensitiveFullAssigned SensitiveAccess = "full_assigned"
	SensitiveFull         SensitiveAccess = "full"
)

// Capabilities is the set of actions a role may perform regardless of context.
// Narrowing to owned, assigned or same-village cases happens in the access guard.
type Capabilities struct {
	CanCreateCase            bool            `json:"can_create_case"`
	CanViewOwnCases          bool            `json:"can_view_own_cases"`
	CanViewVillageCases      bool            `json:"can_view_village_cases"`
	CanViewAllVillagesCases  bool            `json:"can_view_all_villages_cases"`
	CanWriteCaseDocuments    bool            `json:"can_write_case_documents"`
	CanApproveValidation     bool            `json:"can_approve_validation"`
	CanCloseCase             bool            `json:"can_close_case"`
	CanViewNationalAnalytics bool            `json:"can_view_national_analytics"`
	CanManageUsers           bool            `json:"can_manage_users"`
	CanReceiveNotifications  bool            `json:"can_receive_notifications"`
	SensitiveContentAccess   SensitiveAccess `json:"sensitive_content_access"`
}

// matrix holds one explicit entry per role. There is no default row.
var matrix = map[Role]Capabilities{
	RoleDeclarant: {
		CanCreateCase:           true,
		CanViewOwnCases:         true,
		CanReceiveNotifications: true,
		SensitiveContentAccess:  SensitiveNone,
	},
	RolePsychologist: {
		CanCreateCase:           true,
		CanViewOwnCases:         true,
		CanViewVillageCases:     true,
		CanWriteCaseDocuments:   true,
		CanCloseCase:            true,
		CanReceiveNotifications: true,
		SensitiveContentAccess:  SensitiveFullAssigned,
	},
	RoleVillageDirector: {
		CanCreateCase:           true,
		CanViewOwnCases:         true,
		CanViewVillageCases:     true,
		CanApproveValidation:    true,
		CanReceiveNotifications: true,
		SensitiveContentAccess:  SensitiveLimited,
	},
	RoleSafeguardingOfficer: {
		CanCreateCase:           true,
		CanViewOwnCases:         true,
		CanViewVillageCases:     true,
		CanViewAllVillagesCases: true,
		CanApproveValidation:    true,
		CanReceiveNotifications: true,
		SensitiveContentAccess:  SensitiveFull,
	},
	RoleNationalDirector: {
		CanViewNationalAnalytics: true,
		SensitiveContentAccess:   SensitiveNone,
	},
	RoleITAdmin: {
		CanManageUsers:         true,
		SensitiveContentAccess: SensitiveNone,
	},
}

// PermissionsFor returns the capability set of a role. The second result is
// false for unknown roles, which receive the zero set.
func PermissionsFor(role Role) (Capabilities, bool) {
	caps, ok := matrix[role]
	return caps, ok
}

// Permissions returns the capability set of a role, or the empty set.
func Permissions(role Role) Capabilities {
	caps, _ := PermissionsFor(role)
	return caps
}
