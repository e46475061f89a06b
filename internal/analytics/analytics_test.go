package analytics_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sos-villages/signalement/internal/analytics"
	"github.com/sos-villages/signalement/internal/audit"
	"github.com/sos-villages/signalement/internal/auth"
	"github.com/sos-villages/signalement/internal/case/domain"
	"github.com/sos-villages/signalement/internal/case/infrastructure"
	"github.com/sos-villages/signalement/internal/directory"
	authn "github.com/sos-villages/signalement/internal/shared/auth"
	"github.com/sos-villages/signalement/internal/shared/config"
	"github.com/sos-villages/signalement/internal/shared/errors"
	"github.com/sos-villages/signalement/internal/shared/types"
)

var national = auth.Identity{UserID: types.NewID(), Role: auth.RoleNationalDirector}

func seed(t *testing.T) (*infrastructure.MemoryStore, types.ID, types.ID) {
	t.Helper()
	ctx := context.Background()
	store := infrastructure.NewMemoryStore()

	village := func(name string) types.ID {
		id := types.NewID()
		require.NoError(t, store.CreateVillage(ctx, &directory.Village{ID: id, Name: name},
			audit.NewEntry(nil, "", audit.ActionCreateVillage, audit.EntityVillage, id.Ptr(), nil)))
		return id
	}
	akouda, gammarth := village("Akouda"), village("Gammarth")
	village("Siliana")

	add := func(villageID types.ID, incident domain.IncidentType, urgency domain.Urgency, score int, status domain.CaseStatus) {
		c, err := domain.NewCase(domain.NewCaseParams{
			VillageID:    villageID,
			CreatedBy:    types.NewID(),
			IncidentType: incident,
			Urgency:      urgency,
			ChildName:    "Nour",
			Score:        score,
			CreatedAt:    time.Now().UTC(),
		})
		require.NoError(t, err)
		require.NoError(t, store.CreateCase(ctx, c))
		if status != domain.CaseStatusPending {
			ok, err := store.UpdateStatus(ctx, c.ID, domain.CaseStatusPending, status, time.Now().UTC())
			require.NoError(t, err)
			require.True(t, ok)
		}
	}
	add(gammarth, domain.IncidentViolence, domain.UrgencyHigh, 60, domain.CaseStatusPending)
	add(gammarth, domain.IncidentViolence, domain.UrgencyHigh, 60, domain.CaseStatusInProgress)
	add(gammarth, domain.IncidentHealth, domain.UrgencyLow, 25, domain.CaseStatusPending)
	add(akouda, domain.IncidentSexualAbuse, domain.UrgencyCritical, 80, domain.CaseStatusFalseReport)

	return store, akouda, gammarth
}

func TestSummary(t *testing.T) {
	store, akouda, gammarth := seed(t)
	svc := analytics.NewService(store, store)

	sum, err := svc.Summary(context.Background(), national)
	require.NoError(t, err)

	require.Equal(t, 4, sum.TotalCases)
	require.Equal(t, 56.3, sum.AverageScore)
	require.Equal(t, 2, sum.ByStatus["PENDING"])
	require.Equal(t, 1, sum.ByStatus["IN_PROGRESS"])
	require.Equal(t, 1, sum.ByStatus["FALSE_REPORT"])
	require.Equal(t, 0, sum.ByStatus["CLOSED"])
	require.Equal(t, 2, sum.ByIncidentType["VIOLENCE"])
	require.Equal(t, 0, sum.ByIncidentType["NEGLECT"])
	require.Equal(t, 1, sum.ByUrgency["CRITICAL"])

	require.Len(t, sum.Villages, 3)
	require.Equal(t, "Akouda", sum.Villages[0].VillageName)
	require.Equal(t, akouda, sum.Villages[0].VillageID)
	require.Equal(t, 1, sum.Villages[0].TotalCases)
	require.Equal(t, 80.0, sum.Villages[0].AverageScore)

	require.Equal(t, gammarth, sum.Villages[1].VillageID)
	require.Equal(t, 3, sum.Villages[1].TotalCases)
	require.Equal(t, 48.3, sum.Villages[1].AverageScore)

	require.Equal(t, "Siliana", sum.Villages[2].VillageName)
	require.Equal(t, 0, sum.Villages[2].TotalCases)
	require.Equal(t, 0.0, sum.Villages[2].AverageScore)
}

func TestSummaryAccess(t *testing.T) {
	store, _, gammarth := seed(t)
	svc := analytics.NewService(store, store)

	_, err := svc.Summary(context.Background(), auth.Identity{})
	require.True(t, errors.HasCode(err, errors.CodeUnauthenticated))

	for _, role := range []auth.Role{auth.RoleDeclarant, auth.RolePsychologist, auth.RoleVillageDirector, auth.RoleSafeguardingOfficer, auth.RoleITAdmin} {
		actor := auth.Identity{UserID: types.NewID(), Role: role}
		if role.RequiresVillage() {
			actor.VillageID = &gammarth
		}
		_, err := svc.Summary(context.Background(), actor)
		require.True(t, errors.HasCode(err, errors.CodeForbidden), "%s: got %v", role, err)
	}
}

func TestExportXLSX(t *testing.T) {
	store, _, _ := seed(t)
	sum, err := analytics.NewService(store, store).Summary(context.Background(), national)
	require.NoError(t, err)

	data, err := analytics.ExportXLSX(sum)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	require.Equal(t, []string{"Villages", "Breakdown"}, f.GetSheetList())

	rows, err := f.GetRows("Villages")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	require.Equal(t, []string{"Village", "Total", "Average score", "PENDING"}, rows[0][:4])
	require.Equal(t, "Akouda", rows[1][0])
	require.Equal(t, "Total", rows[4][0])
	require.Equal(t, "4", rows[4][1])

	breakdown, err := f.GetRows("Breakdown")
	require.NoError(t, err)
	require.Equal(t, []string{"Dimension", "Value", "Cases"}, breakdown[0])
	require.Len(t, breakdown, 1+len(domain.Statuses())+len(domain.IncidentTypes())+len(domain.Urgencies()))
}

func TestAnalyticsRoutes(t *testing.T) {
	store, _, _ := seed(t)
	cfg := config.AuthConfig{JWTSecret: "secret", JWTExpiry: time.Hour}

	r := chi.NewRouter()
	r.Use(authn.Middleware(cfg))
	r.Mount("/analytics", analytics.NewHandler(analytics.NewService(store, store)).Routes())

	get := func(path string, actor auth.Identity) *httptest.ResponseRecorder {
		token, _, err := authn.IssueToken(cfg, actor, time.Now())
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/analytics/summary", national)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total_cases":4`)
	require.NotContains(t, rec.Body.String(), "Nour")

	rec = get("/analytics/export.xlsx", national)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, analytics.XLSXContentType, rec.Header().Get("Content-Type"))
	require.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	rec = get("/analytics/summary", auth.Identity{UserID: types.NewID(), Role: auth.RoleSafeguardingOfficer})
	require.Equal(t, http.StatusForbidden, rec.Code)
}
