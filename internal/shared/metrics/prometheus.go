package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "signalement"

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served",
		},
	)

	casesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalement_cases_created_total",
			Help: "Total number of cases created",
		},
		[]string{"incident_type", "urgency"},
	)

	caseScores = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signalement_case_score",
			Help:    "Priority score assigned at case creation",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)

	casesStatusChanged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalement_case_status_changes_total",
			Help: "Total number of case status changes",
		},
		[]string{"from_status", "to_status"},
	)

	caseRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalement_case_rejections_total",
			Help: "Case operations rejected by the state machine or the balancer",
		},
		[]string{"operation", "code"},
	)

	documentsUploaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalement_documents_uploaded_total",
			Help: "Total number of case documents uploaded",
		},
		[]string{"doc_type"},
	)

	validationsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalement_validations_total",
			Help: "Total number of signed validations recorded",
		},
		[]string{"kind"},
	)

	notificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalement_notifications_delivered_total",
			Help: "Notification delivery attempts by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	reminderSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalement_reminder_sweeps_total",
			Help: "Pending-case reminder sweep iterations",
		},
		[]string{"outcome"},
	)

	remindersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signalement_reminders_created_total",
			Help: "Pending reminders inserted by the sweep",
		},
	)

	auditEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signalement_audit_entries_total",
			Help: "Audit entries appended to the chain",
		},
	)

	authorizationDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signalement_authorization_decisions_total",
			Help: "Access guard decisions by role and action",
		},
		[]string{"role", "action", "decision"},
	)

	dbConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "signalement_db_connections_acquired",
			Help: "Pool connections acquired at the last health check",
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count, latency and in-flight gauge per chi
// route pattern. Mount it before the routes so the pattern is resolved by
// the time the handler returns.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		path := routePattern(r)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// routePattern labels requests with the matched chi route so ids don't explode cardinality
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

// RecordCaseCreated records a case creation and its score
func RecordCaseCreated(incidentType, urgency string, score int) {
	casesCreated.WithLabelValues(incidentType, urgency).Inc()
	caseScores.Observe(float64(score))
}

// RecordCaseStatusChange records a case status change
func RecordCaseStatusChange(fromStatus, toStatus string) {
	casesStatusChanged.WithLabelValues(fromStatus, toStatus).Inc()
}

// RecordCaseRejection records an operation refused with a domain error code
func RecordCaseRejection(operation, code string) {
	caseRejections.WithLabelValues(operation, code).Inc()
}

// RecordDocumentUploaded records a psychologist document upload
func RecordDocumentUploaded(docType string) {
	documentsUploaded.WithLabelValues(docType).Inc()
}

// RecordValidation records a director or safeguarding validation
func RecordValidation(kind string) {
	validationsRecorded.WithLabelValues(kind).Inc()
}

// RecordNotificationDelivery records one delivery outcome
func RecordNotificationDelivery(channel string, delivered bool) {
	outcome := "failed"
	if delivered {
		outcome = "delivered"
	}
	notificationsDelivered.WithLabelValues(channel, outcome).Inc()
}

// RecordReminderSweep records a sweep iteration and the reminders it created
func RecordReminderSweep(outcome string, created int) {
	reminderSweeps.WithLabelValues(outcome).Inc()
	remindersCreated.Add(float64(created))
}

// RecordAuditEntry records an audit entry creation
func RecordAuditEntry() {
	auditEntriesTotal.Inc()
}

// RecordAuthorizationDecision records an access guard decision
func RecordAuthorizationDecision(role, action string, allowed bool) {
	decision := "deny"
	if allowed {
		decision = "allow"
	}
	authorizationDecisions.WithLabelValues(role, action, decision).Inc()
}

// RecordDBConnections records active database connections
func RecordDBConnections(count int) {
	dbConnectionsActive.Set(float64(count))
}
