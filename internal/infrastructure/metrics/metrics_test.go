package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/groupmatch/internal/application/matchmaking"
	"github.com/studyhub/groupmatch/internal/domain/matching"
	"github.com/studyhub/groupmatch/internal/domain/shared"
	"github.com/studyhub/groupmatch/internal/infrastructure/scheduler"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.ObserveCourse(matchmaking.OutcomeFormed, 10*time.Millisecond)
	m.ObserveCourse(matchmaking.OutcomeFormed, 10*time.Millisecond)
	m.ObserveCourse(matchmaking.OutcomeLocked, time.Millisecond)
	m.ObserveSearch(matching.Result{Evaluated: 12, Truncated: true})
	m.ObserveRun(matchmaking.RunReport{GroupsFormed: 2, Duration: time.Second})
	m.ObserveEvent(shared.EventGroupFilled)
	m.ObserveHandler(shared.EventGroupFilled, time.Millisecond, errors.New("x"))
	m.ObserveHandler(shared.EventGroupFilled, time.Millisecond, nil)
	m.ObserveJob(scheduler.JobResult{JobName: "matchmaking", Success: false})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.courseOutcomes.WithLabelValues("formed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.courseOutcomes.WithLabelValues("locked")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.searchTruncated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.groupsFormed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("group.filled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.handlerFailures.WithLabelValues("group.filled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobRuns.WithLabelValues("matchmaking", "failure")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/courses/{courseID}/queue", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/courses/"+id+"/queue", nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(
		m.httpRequests.WithLabelValues("GET", "/api/v1/courses/{courseID}/queue", "418")))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "groupmatch_http_requests_total"))
}
