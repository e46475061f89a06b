package access

import (
	"testing"

	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

func strPtr(s string) *string { return &s }

func newCase(villageID, createdBy types.ID) *domain.Case {
	return &domain.Case{
		ID:          types.NewID(),
		Status:      domain.CaseStatusPending,
		VillageID:   villageID,
		CreatedBy:   createdBy,
		ChildName:   strPtr("Amine"),
		AbuserName:  strPtr("Karim"),
		Description: strPtr("coups répétés"),
	}
}

func identity(role auth.Role, villageID *types.ID) auth.Identity {
	return auth.Identity{UserID: types.NewID(), Role: role, VillageID: villageID}
}

func TestCanAccess(t *testing.T) {
	village := types.NewID()
	other := types.NewID()
	creator := identity(auth.RoleDeclarant, village.Ptr())
	c := newCase(village, creator.UserID)

	tests := []struct {
		name     string
		actor    auth.Identity
		assigned bool
		want     bool
	}{
		{"creator", creator, false, true},
		{"other declarant same village", identity(auth.RoleDeclarant, village.Ptr()), false, false},
		{"assigned psychologist", identity(auth.RolePsychologist, village.Ptr()), true, true},
		{"unassigned psychologist same village", identity(auth.RolePsychologist, village.Ptr()), false, false},
		{"director same village", identity(auth.RoleVillageDirector, village.Ptr()), false, true},
		{"director other village", identity(auth.RoleVillageDirector, other.Ptr()), false, false},
		{"director without village", identity(auth.RoleVillageDirector, nil), false, false},
		{"safeguarding officer", identity(auth.RoleSafeguardingOfficer, nil), false, true},
		{"national director", identity(auth.RoleNationalDirector, nil), false, false},
		{"it admin", identity(auth.RoleITAdmin, nil), true, false},
		{"anonymous", auth.Identity{}, false, false},
		{"unknown role", identity(auth.Role("GUEST"), village.Ptr()), true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanAccess(tt.actor, c, tt.assigned); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDecide(t *testing.T) {
	village := types.NewID()
	c := newCase(village, types.NewID())

	err := Decide(identity(auth.RoleDeclarant, village.Ptr()), c, false)
	if !errors.HasCode(err, errors.CodeForbidden) {
		t.Errorf("Expected FORBIDDEN for another declarant, got %v", err)
	}

	err = Decide(auth.Identity{}, c, false)
	if !errors.HasCode(err, errors.CodeUnauthenticated) {
		t.Errorf("Expected UNAUTHENTICATED, got %v", err)
	}

	if err := Decide(identity(auth.RoleSafeguardingOfficer, nil), c, false); err != nil {
		t.Errorf("Expected allow, got %v", err)
	}
}

func TestConceal(t *testing.T) {
	village := types.NewID()
	missing := errors.NotFound("case", types.NewID().String())

	tests := []struct {
		name  string
		actor auth.Identity
		want  string
	}{
		{"declarant", identity(auth.RoleDeclarant, village.Ptr()), errors.CodeForbidden},
		{"psychologist", identity(auth.RolePsychologist, village.Ptr()), errors.CodeForbidden},
		{"village director", identity(auth.RoleVillageDirector, village.Ptr()), errors.CodeForbidden},
		{"national director", identity(auth.RoleNationalDirector, nil), errors.CodeForbidden},
		{"it admin", identity(auth.RoleITAdmin, nil), errors.CodeForbidden},
		{"safeguarding officer", identity(auth.RoleSafeguardingOfficer, nil), errors.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Conceal(tt.actor, missing); !errors.HasCode(err, tt.want) {
				t.Errorf("Expected %s, got %v", tt.want, err)
			}
		})
	}

	conflict := errors.Forbidden("other")
	if Conceal(identity(auth.RoleDeclarant, village.Ptr()), conflict) != error(conflict) {
		t.Error("Expected non NOT_FOUND errors to pass through")
	}
	if Conceal(identity(auth.RoleDeclarant, village.Ptr()), nil) != nil {
		t.Error("Expected nil to pass through")
	}
}

func TestScope(t *testing.T) {
	village := types.NewID()

	t.Run("declarant sees own cases", func(t *testing.T) {
		actor := identity(auth.RoleDeclarant, village.Ptr())
		filter, ok := Scope(actor, ListRequest{})
		if !ok || filter.CreatedBy == nil || *filter.CreatedBy != actor.UserID {
			t.Fatalf("Unexpected filter %+v", filter)
		}
		if filter.VillageID != nil || len(filter.Statuses) != 0 {
			t.Errorf("Expected no village or status scoping, got %+v", filter)
		}
		if filter.Limit != 50 {
			t.Errorf("Expected default limit 50, got %d", filter.Limit)
		}
	})

	t.Run("psychologist sees assigned cases in village", func(t *testing.T) {
		actor := identity(auth.RolePsychologist, village.Ptr())
		filter, ok := Scope(actor, ListRequest{Limit: 500})
		if !ok || filter.AssignedTo == nil || *filter.AssignedTo != actor.UserID {
			t.Fatalf("Unexpected filter %+v", filter)
		}
		if filter.VillageID == nil || *filter.VillageID != village {
			t.Errorf("Expected village scope, got %+v", filter.VillageID)
		}
		if len(filter.Statuses) != 3 {
			t.Errorf("Expected default statuses, got %v", filter.Statuses)
		}
		if filter.Limit != 100 {
			t.Errorf("Expected limit clamped to 100, got %d", filter.Limit)
		}
	})

	t.Run("director defaults to in progress", func(t *testing.T) {
		filter, ok := Scope(identity(auth.RoleVillageDirector, village.Ptr()), ListRequest{})
		if !ok || len(filter.Statuses) != 1 || filter.Statuses[0] != domain.CaseStatusInProgress {
			t.Errorf("Unexpected filter %+v", filter)
		}
	})

	t.Run("explicit statuses override defaults", func(t *testing.T) {
		req := ListRequest{Statuses: []domain.CaseStatus{domain.CaseStatusClosed}}
		filter, _ := Scope(identity(auth.RoleVillageDirector, village.Ptr()), req)
		if len(filter.Statuses) != 1 || filter.Statuses[0] != domain.CaseStatusClosed {
			t.Errorf("Expected explicit statuses, got %v", filter.Statuses)
		}
	})

	t.Run("safeguarding sees all villages", func(t *testing.T) {
		filter, ok := Scope(identity(auth.RoleSafeguardingOfficer, nil), ListRequest{AwaitingSafeguarding: true})
		if !ok || filter.VillageID != nil || !filter.AwaitingSafeguarding {
			t.Errorf("Unexpected filter %+v", filter)
		}
	})

	for _, actor := range []auth.Identity{
		identity(auth.RolePsychologist, nil),
		identity(auth.RoleVillageDirector, nil),
		identity(auth.RoleNationalDirector, nil),
		identity(auth.RoleITAdmin, nil),
	} {
		t.Run("empty for "+string(actor.Role), func(t *testing.T) {
			if _, ok := Scope(actor, ListRequest{}); ok {
				t.Error("Expected empty scope")
			}
		})
	}
}

func TestProject(t *testing.T) {
	village := types.NewID()
	creator := identity(auth.RoleDeclarant, village.Ptr())
	c := newCase(village, creator.UserID)

	t.Run("safeguarding sees everything", func(t *testing.T) {
		out := Project(identity(auth.RoleSafeguardingOfficer, nil), c)
		if out.ChildName == nil || out.AbuserName == nil || out.Description == nil {
			t.Errorf("Expected full content, got %+v", out)
		}
	})

	t.Run("director sees masked names", func(t *testing.T) {
		out := Project(identity(auth.RoleVillageDirector, village.Ptr()), c)
		if out.ChildName != nil || out.AbuserName != nil {
			t.Error("Expected names masked")
		}
		if out.Description == nil {
			t.Error("Expected description kept")
		}
	})

	t.Run("creator sees own content", func(t *testing.T) {
		out := Project(creator, c)
		if out.ChildName == nil || out.Description == nil {
			t.Error("Expected creator to see own case content")
		}
	})

	t.Run("stored case untouched", func(t *testing.T) {
		Project(identity(auth.RoleVillageDirector, village.Ptr()), c)
		if c.ChildName == nil {
			t.Error("Projection modified the stored case")
		}
	})
}

func TestProjectAnonymousCreator(t *testing.T) {
	village := types.NewID()
	creator := identity(auth.RoleDeclarant, village.Ptr())
	c := newCase(village, creator.UserID)
	c.IsAnonymous = true

	if out := Project(identity(auth.RoleSafeguardingOfficer, nil), c); !out.CreatedBy.IsZero() {
		t.Errorf("Expected creator hidden, got %s", out.CreatedBy)
	}
	if out := Project(creator, c); out.CreatedBy != creator.UserID {
		t.Error("Expected creator to see themselves")
	}

	projected := ProjectAll(identity(auth.RoleSafeguardingOfficer, nil), []*domain.Case{c, nil})
	if len(projected) != 2 || projected[1] != nil {
		t.Errorf("Unexpected projection %+v", projected)
	}
}
