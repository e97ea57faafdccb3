package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhub/groupmatch/internal/application/command"
	"github.com/studyhub/groupmatch/internal/application/matchmaking"
	"github.com/studyhub/groupmatch/internal/application/query"
	"github.com/studyhub/groupmatch/internal/domain/matching"
	"github.com/studyhub/groupmatch/internal/domain/preference"
	"github.com/studyhub/groupmatch/internal/infrastructure/persistence/sqlite"
	"github.com/studyhub/groupmatch/internal/testutil"
)

const operatorKey = "op-secret"

type testServer struct {
	store  *sqlite.Store
	fx     *testutil.Fixtures
	server *Server
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	store := testutil.NewStore(t)
	clock := func() time.Time { return testutil.Epoch }

	deps := command.Deps{Store: store, Clock: clock}
	m, err := matching.NewMatcher(matching.DefaultCriteria())
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.RateLimitPerSecond = 0
	cfg.OperatorKeys = []string{operatorKey}
	if mutate != nil {
		mutate(&cfg)
	}

	srv := NewServer(cfg, Dependencies{
		EnqueueTicket:       command.NewEnqueueTicketHandler(deps),
		WithdrawTicket:      command.NewWithdrawTicketHandler(deps),
		EnqueueGroupTicket:  command.NewEnqueueGroupTicketHandler(deps),
		WithdrawGroupTicket: command.NewWithdrawGroupTicketHandler(deps),
		LeaveGroup:          command.NewLeaveGroupHandler(deps),
		CreateGroup:         command.NewCreateGroupHandler(deps),
		UpdatePreferences:   command.NewUpdatePreferencesHandler(deps, nil),
		QueueStatus:         query.NewQueueStatusHandler(store, store.Repositories().Users, clock, nil),
		Runner:              matchmaking.New(store, m, nil, matchmaking.WithClock(clock)),
	})
	return &testServer{store: store, fx: testutil.NewFixtures(t, store), server: srv}
}

func (ts *testServer) do(method, path, user, body string, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func TestEnqueueAndWithdrawTicket(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.fx.Course(3)
	u := ts.fx.User(testutil.Prefs(preference.Weekdays))

	rec := ts.do(http.MethodPost, "/api/v1/courses/"+c.ID+"/tickets", u.ID, `{"preferences":{"days":["sat","sun"]}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var ticket ticketResponse
	env := decode(t, rec, &ticket)
	assert.True(t, env.Success)
	assert.Equal(t, c.ID, ticket.CourseID)
	assert.NotEmpty(t, ticket.TicketID)
	assert.Equal(t, preference.Weekend, ticket.Preferences.Days)

	rec = ts.do(http.MethodPost, "/api/v1/courses/"+c.ID+"/tickets", u.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	env = decode(t, rec, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "conflict", env.Error.Code)

	rec = ts.do(http.MethodDelete, "/api/v1/tickets/"+ticket.TicketID, u.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/v1/tickets/"+ticket.TicketID, u.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnqueueErrors(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.fx.Course(3)
	u := ts.fx.User(testutil.Prefs(preference.Weekdays))

	tests := []struct {
		name   string
		path   string
		user   string
		body   string
		status int
		code   string
	}{
		{"missing identity", "/api/v1/courses/" + c.ID + "/tickets", "", "", http.StatusUnauthorized, "unauthenticated"},
		{"unknown course", "/api/v1/courses/" + testutil.NewID() + "/tickets", u.ID, "", http.StatusNotFound, "not_found"},
		{"malformed body", "/api/v1/courses/" + c.ID + "/tickets", u.ID, `{"preferences":`, http.StatusBadRequest, "bad_request"},
		{"unknown field", "/api/v1/courses/" + c.ID + "/tickets", u.ID, `{"prefs":{}}`, http.StatusBadRequest, "bad_request"},
		{"malformed identity", "/api/v1/courses/" + c.ID + "/tickets", "alice", "", http.StatusBadRequest, "bad_request"},
		{"malformed course id", "/api/v1/courses/abc/tickets", u.ID, "", http.StatusBadRequest, "bad_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(http.MethodPost, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			env := decode(t, rec, nil)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestQueueStatusListsWaitingTickets(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.fx.Course(3)
	a := ts.fx.User(testutil.Prefs(preference.Weekdays))
	b := ts.fx.User(testutil.Prefs(preference.Weekdays))

	for _, u := range []string{a.ID, b.ID} {
		rec := ts.do(http.MethodPost, "/api/v1/courses/"+c.ID+"/tickets", u, "")
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(http.MethodGet, "/api/v1/courses/"+c.ID+"/queue", a.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status query.QueueStatusDTO
	decode(t, rec, &status)
	assert.Equal(t, c.ID, status.CourseID)
	assert.Equal(t, 2, status.Individuals)
	require.Len(t, status.Entries, 2)
	assert.Equal(t, a.ID, status.Entries[0].UserID)
	assert.Equal(t, []string{a.Name}, status.Entries[0].MemberNames)
}

func TestRateLimitPerUser(t *testing.T) {
	ts := newTestServer(t, func(c *Config) {
		c.RateLimitPerSecond = 0.001
		c.RateLimitBurst = 1
	})
	c := ts.fx.Course(3)
	a := ts.fx.User(testutil.Prefs(preference.Weekdays))
	b := ts.fx.User(testutil.Prefs(preference.Weekdays))

	path := "/api/v1/courses/" + c.ID + "/queue"
	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, path, a.ID, "").Code)

	rec := ts.do(http.MethodGet, path, a.ID, "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, ts.do(http.MethodGet, path, b.ID, "").Code)
}

func TestOperatorRoutesRequireKey(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.fx.Course(2)
	path := "/api/v1/courses/" + c.ID + "/matchmaking"

	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPost, path, "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, ts.do(http.MethodPost, path, "", "", "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK, ts.do(http.MethodPost, path, "", "", "X-API-Key", operatorKey).Code)
}

func TestOperatorRoutesDisabledWithoutKeys(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.OperatorKeys = nil })
	c := ts.fx.Course(2)

	rec := ts.do(http.MethodPost, "/api/v1/courses/"+c.ID+"/matchmaking", "", "", "X-API-Key", operatorKey)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunMatchmakingFormsGroup(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.fx.Course(2)
	a := ts.fx.User(testutil.Prefs(preference.Weekdays))
	b := ts.fx.User(testutil.Prefs(preference.Weekdays))
	for _, u := range []string{a.ID, b.ID} {
		require.Equal(t, http.StatusCreated, ts.do(http.MethodPost, "/api/v1/courses/"+c.ID+"/tickets", u, "").Code)
	}

	rec := ts.do(http.MethodPost, "/api/v1/courses/"+c.ID+"/matchmaking", "", "", "X-API-Key", operatorKey)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out courseOutcomeResponse
	decode(t, rec, &out)
	assert.Equal(t, string(matchmaking.OutcomeFormed), out.Outcome)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, out.Members)
	assert.True(t, out.Complete)
	assert.NotEmpty(t, out.GroupID)

	// both tickets left the queue
	rec = ts.do(http.MethodGet, "/api/v1/courses/"+c.ID+"/queue", a.ID, "")
	var status query.QueueStatusDTO
	decode(t, rec, &status)
	assert.Empty(t, status.Entries)

	// a second run has nothing to match
	rec = ts.do(http.MethodPost, "/api/v1/courses/"+c.ID+"/matchmaking", "", "", "X-API-Key", operatorKey)
	decode(t, rec, &out)
	assert.Equal(t, string(matchmaking.OutcomeSkipped), out.Outcome)
}

func TestCreateGroupAndGroupTicket(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.fx.Course(3)
	a := ts.fx.User(testutil.Prefs(preference.Weekdays))
	b := ts.fx.User(testutil.Prefs(preference.Weekdays))

	body := `{"members":["` + a.ID + `","` + b.ID + `"]}`
	rec := ts.do(http.MethodPost, "/api/v1/courses/"+c.ID+"/groups", "", body, "X-API-Key", operatorKey)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created createGroupResponse
	decode(t, rec, &created)
	assert.Equal(t, 3, created.Capacity)
	assert.False(t, created.IsComplete)

	rec = ts.do(http.MethodPost, "/api/v1/groups/"+created.GroupID+"/ticket", a.ID, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var gt groupTicketResponse
	decode(t, rec, &gt)
	assert.Equal(t, 1, gt.OpenSeats)
	assert.Equal(t, c.ID, gt.CourseID)

	rec = ts.do(http.MethodDelete, "/api/v1/groups/"+created.GroupID+"/ticket", b.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/v1/groups/"+created.GroupID+"/members/me", b.ID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var left leaveGroupResponse
	decode(t, rec, &left)
	assert.Equal(t, 1, left.Remaining)
	assert.False(t, left.Disbanded)
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestUpdatePreferences(t *testing.T) {
	ts := newTestServer(t, nil)
	u := ts.fx.User(testutil.Prefs(preference.Weekdays))

	rec := ts.do(http.MethodPut, "/api/v1/me/preferences", u.ID, `{"preferences":{"days":["weekend"],"locations":["library"]}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp preferencesResponse
	decode(t, rec, &resp)
	assert.Equal(t, u.ID, resp.UserID)
	assert.Equal(t, []string{"days", "locations"}, resp.Changed)
	assert.Equal(t, preference.Weekend, resp.Preferences.Days)
	assert.Equal(t, preference.Locations(preference.Library), resp.Preferences.Locations)

	rec = ts.do(http.MethodPut, "/api/v1/me/preferences", u.ID, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(http.MethodPut, "/api/v1/me/preferences", testutil.NewID(), `{"preferences":{"days":["mon"]}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, func(c *Config) { c.CORSOrigins = []string{"https://app.example.edu"} })

	rec := ts.do(http.MethodOptions, "/api/v1/me/preferences", "", "",
		"Origin", "https://app.example.edu",
		"Access-Control-Request-Method", http.MethodPut)
	assert.Equal(t, "https://app.example.edu", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = ts.do(http.MethodOptions, "/api/v1/me/preferences", "", "",
		"Origin", "https://evil.example.com",
		"Access-Control-Request-Method", http.MethodPut)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMalformedIDsAreRejected(t *testing.T) {
	ts := newTestServer(t, nil)
	c := ts.fx.Course(3)
	u := ts.fx.User(testutil.Prefs(preference.Weekdays))

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		headers []string
	}{
		{"withdraw ticket", http.MethodDelete, "/api/v1/tickets/not-a-uuid", "", nil},
		{"queue status", http.MethodGet, "/api/v1/courses/42/queue", "", nil},
		{"enqueue group", http.MethodPost, "/api/v1/groups/xyz/ticket", "", nil},
		{"withdraw group", http.MethodDelete, "/api/v1/groups/xyz/ticket", "", nil},
		{"leave group", http.MethodDelete, "/api/v1/groups/xyz/members/me", "", nil},
		{"run matchmaking", http.MethodPost, "/api/v1/courses/abc/matchmaking", "", []string{"X-API-Key", operatorKey}},
		{"create group member", http.MethodPost, "/api/v1/courses/" + c.ID + "/groups",
			`{"capacity":3,"members":["` + u.ID + `","bob"]}`, []string{"X-API-Key", operatorKey}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(tt.method, tt.path, u.ID, tt.body, tt.headers...)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			env := decode(t, rec, nil)
			require.NotNil(t, env.Error)
			assert.Equal(t, "bad_request", env.Error.Code)
		})
	}
}
