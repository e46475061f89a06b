package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/cases/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/cases/{id}", "404"))
	for _, id := range []string{"a", "b", "c"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/cases/"+id, nil))
	}
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/cases/{id}", "404"))

	require.Equal(t, 3.0, after-before)
	require.Equal(t, 0.0, testutil.ToFloat64(httpRequestsInFlight))
}

func TestMiddlewareDefaultsToOK(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, before+1, testutil.ToFloat64(httpRequestsTotal.WithLabelValues(http.MethodGet, "/health", "200")))
}

func TestDomainHelpers(t *testing.T) {
	RecordNotificationDelivery("email", false)
	require.GreaterOrEqual(t, testutil.ToFloat64(notificationsDelivered.WithLabelValues("email", "failed")), 1.0)

	RecordAuthorizationDecision("PSY", "case.view", true)
	require.GreaterOrEqual(t, testutil.ToFloat64(authorizationDecisions.WithLabelValues("PSY", "case.view", "allow")), 1.0)

	before := testutil.ToFloat64(remindersCreated)
	RecordReminderSweep("ok", 4)
	require.Equal(t, before+4, testutil.ToFloat64(remindersCreated))

	RecordDBConnections(7)
	require.Equal(t, 7.0, testutil.ToFloat64(dbConnectionsActive))
}
