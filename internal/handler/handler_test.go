package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edutrack/internal/analytics"
	"edutrack/internal/attendance"
	"edutrack/internal/auth"
	"edutrack/internal/code"
	"edutrack/internal/engagement"
	"edutrack/internal/identity"
	"edutrack/internal/response"
	"edutrack/internal/roster"
	"edutrack/internal/session"
	"edutrack/internal/store"
	"edutrack/internal/timetable"
	"edutrack/internal/validator"
)

var (
	alex    = identity.Person{ID: "s1", Name: "Alex", Role: identity.RoleSubject}
	blair   = identity.Person{ID: "s2", Name: "Blair", Role: identity.RoleSubject}
	casey   = identity.Person{ID: "s3", Name: "Casey", Role: identity.RoleSubject}
	teacher = identity.Person{ID: "t1", Name: "Ms Novak", Role: identity.RoleOwner}
	other   = identity.Person{ID: "t2", Name: "Mr Ortiz", Role: identity.RoleOwner}
	office  = identity.Person{ID: "a1", Name: "Office", Role: identity.RoleObserver}
	nobody  = identity.Person{}
)

const mathID = "math:2024-01-15"

func at(hour, min int) time.Time {
	return time.Date(2024, 1, 15, hour, min, 0, 0, time.UTC)
}

type testEnv struct {
	t      *testing.T
	engine *gin.Engine
	clock  time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validator.Setup()

	slots := []timetable.Slot{
		{ID: "math", Subject: "Mathematics", OwnerID: "t1", Room: "R101", Group: "g1", Day: time.Monday, Start: 9 * 60, End: 10 * 60, Kind: timetable.KindInstructional},
		{ID: "break", Subject: "Break", Room: "Yard", Group: "g1", Day: time.Monday, Start: 10 * 60, End: 10*60 + 15, Kind: timetable.KindRecess},
		{ID: "art", Subject: "Art", OwnerID: "t2", Room: "R102", Group: "g2", Day: time.Monday, Start: 9 * 60, End: 10 * 60, Kind: timetable.KindInstructional},
	}
	tt, err := timetable.New(time.UTC, slots,
		map[string][]string{"g1": {"s1", "s2"}, "g2": {"s3"}},
		[]identity.Person{alex, blair, casey, teacher, other, office})
	require.NoError(t, err)

	log := zerolog.Nop()
	resolver := session.NewResolver(time.Minute)
	repo := attendance.NewRepository(store.NewMemory())
	codes := code.NewIssuer(code.NewMemoryStore(), code.Config{}, log)
	svc := attendance.NewService(repo, tt, resolver, codes, attendance.DefaultLateGrace, log)
	agg := roster.NewAggregator(repo, tt, resolver)
	rollup := analytics.NewRollup(repo, tt, resolver)

	e := &testEnv{t: t, clock: at(9, 0)}
	now := func() time.Time { return e.clock }

	people := map[string]identity.Person{}
	for _, p := range []identity.Person{alex, blair, casey, teacher, other, office} {
		people[p.ID] = p
	}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		auth.SetPerson(c, people[c.GetHeader("X-Person")])
		c.Next()
	})

	att := NewAttendanceHandler(svc, agg, tt, resolver, now, log)
	codeH := NewCodeHandler(svc, now, log)
	reports := NewReportHandler(svc, rollup, tt, now, log)
	display := NewDisplayHandler(svc, agg, tt, resolver, 5*time.Second, now, log)
	engage := NewEngagementHandler(engagement.NewService(engagement.NewRepository(store.NewMemory()), log), now, log)

	r.GET("/v1/me/session", att.MySession)
	r.GET("/v1/me/schedule", att.MySchedule)
	r.POST("/v1/attendance/mark", att.Mark)
	r.PUT("/v1/sessions/:session_id/attendance/:person_id", att.Override)
	r.GET("/v1/sessions/:session_id/attendance/:person_id/history", att.History)
	r.GET("/v1/sessions/:session_id/roster", att.Roster)
	r.GET("/v1/sessions/:session_id/stats", att.Stats)
	r.POST("/v1/sessions/:session_id/code", codeH.Issue)
	r.GET("/v1/sessions/:session_id/code", codeH.Current)
	r.GET("/v1/sessions/:session_id/code/qr.png", codeH.QR)
	r.GET("/v1/people/:person_id/records", reports.Records)
	r.GET("/v1/people/:person_id/summary", reports.Summary)
	r.GET("/v1/analytics/trend", reports.Trend)
	r.GET("/v1/analytics/breakdown", reports.Breakdown)
	r.GET("/v1/analytics/volume", reports.Volume)
	r.POST("/v1/goals", engage.CreateGoal)
	r.GET("/v1/people/:person_id/goals", engage.Goals)
	r.POST("/v1/tasks/complete", engage.CompleteTask)
	r.GET("/v1/people/:person_id/tasks", engage.Tasks)
	r.GET("/v1/display/rooms/:room", display.Room)
	e.engine = r
	return e
}

type envelope struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (e *testEnv) do(method, path string, as identity.Person, body string) *httptest.ResponseRecorder {
	e.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("X-Person", as.ID)
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	if data != nil && env.Data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func (e *testEnv) issueCode(as identity.Person) string {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/v1/sessions/"+mathID+"/code", as, "")
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Code code.Code `json:"code"`
	}
	decode(e.t, rec, &out)
	return out.Code.Value
}

func (e *testEnv) mark(as identity.Person, value string) *httptest.ResponseRecorder {
	e.t.Helper()
	return e.do(http.MethodPost, "/v1/attendance/mark", as, `{"code":"`+value+`"}`)
}

func TestMarkFlow(t *testing.T) {
	e := newTestEnv(t)
	value := e.issueCode(teacher)

	e.clock = at(9, 5)
	rec := e.mark(alex, strings.ToLower(value))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var out struct {
		Entry attendance.Entry `json:"entry"`
	}
	decode(t, rec, &out)
	assert.Equal(t, attendance.StatusPresent, out.Entry.Status)
	assert.Equal(t, mathID, out.Entry.SessionID)

	e.clock = at(9, 12)
	rec = e.do(http.MethodPost, "/v1/attendance/mark", blair, `{"session_id":"`+mathID+`","code":"`+value+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	decode(t, rec, &out)
	assert.Equal(t, attendance.StatusLate, out.Entry.Status)

	e.clock = at(10, 5)
	rec = e.mark(alex, value)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, response.ErrInvalidSession, decode(t, rec, nil).Error.Code)
}

func TestMarkRejections(t *testing.T) {
	e := newTestEnv(t)
	value := e.issueCode(teacher)
	e.clock = at(9, 3)

	tests := []struct {
		name   string
		as     identity.Person
		body   string
		status int
		code   response.ErrCode
		field  string
	}{
		{name: "missing code", as: alex, body: `{}`, status: http.StatusBadRequest, code: response.ErrValidation, field: "code"},
		{name: "malformed body", as: alex, body: `{"code":`, status: http.StatusBadRequest, code: response.ErrValidation, field: "detail"},
		{name: "wrong code", as: alex, body: `{"code":"NOPE42"}`, status: http.StatusUnprocessableEntity, code: response.ErrInvalidCode, field: "reason"},
		{name: "other session", as: alex, body: `{"session_id":"art:2024-01-15","code":"` + value + `"}`, status: http.StatusConflict, code: response.ErrInvalidSession},
		{name: "owner cannot self mark", as: teacher, body: `{"code":"` + value + `"}`, status: http.StatusForbidden, code: response.ErrForbidden},
		{name: "anonymous", as: nobody, body: `{"code":"` + value + `"}`, status: http.StatusUnauthorized, code: response.ErrUnauthorized},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(http.MethodPost, "/v1/attendance/mark", tc.as, tc.body)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())
			env := decode(t, rec, nil)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
			if tc.field != "" {
				assert.Contains(t, env.Error.Fields, tc.field)
			}
		})
	}

	rec := e.mark(alex, "NOPE42")
	assert.Equal(t, "mismatch", decode(t, rec, nil).Error.Fields["reason"])
}

func TestOverrideAndHistory(t *testing.T) {
	e := newTestEnv(t)
	value := e.issueCode(teacher)
	e.clock = at(9, 4)
	require.Equal(t, http.StatusCreated, e.mark(alex, value).Code)

	e.clock = at(11, 0)
	path := "/v1/sessions/" + mathID + "/attendance/s1"
	rec := e.do(http.MethodPut, path, teacher, `{"status":"absent"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPut, path, teacher, `{"status":"gone"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec, nil).Error.Fields, "status")

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPut, path, other, `{"status":"late"}`).Code)
	assert.Equal(t, http.StatusUnprocessableEntity,
		e.do(http.MethodPut, "/v1/sessions/"+mathID+"/attendance/s3", teacher, `{"status":"late"}`).Code)
	assert.Equal(t, http.StatusNotFound,
		e.do(http.MethodPut, "/v1/sessions/math:2024-01-16/attendance/s1", teacher, `{"status":"late"}`).Code)

	var out struct {
		History []attendance.Entry `json:"history"`
	}
	rec = e.do(http.MethodGet, path+"/history", alex, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &out)
	require.Len(t, out.History, 2)
	assert.Equal(t, attendance.MethodCode, out.History[0].Method)
	assert.Equal(t, attendance.StatusAbsent, out.History[1].Status)
	assert.Equal(t, "t1", out.History[1].RecordedBy)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, path+"/history", blair, "").Code)
}

func TestRosterAndStats(t *testing.T) {
	e := newTestEnv(t)
	value := e.issueCode(teacher)
	e.clock = at(9, 4)
	require.Equal(t, http.StatusCreated, e.mark(alex, value).Code)

	var out struct {
		Stats  roster.Stats `json:"stats"`
		Roster []roster.Row `json:"roster"`
	}
	rec := e.do(http.MethodGet, "/v1/sessions/"+mathID+"/roster", teacher, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &out)
	require.Len(t, out.Roster, 2)
	assert.Equal(t, "present", out.Roster[0].Status)
	assert.Equal(t, roster.Unmarked, out.Roster[1].Status)
	assert.Equal(t, 100, out.Stats.Percentage)

	e.clock = at(10, 30)
	rec = e.do(http.MethodGet, "/v1/sessions/"+mathID+"/stats", office, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &out)
	assert.Equal(t, session.StateClosed, out.Stats.State)
	assert.Equal(t, 50, out.Stats.Percentage)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/sessions/"+mathID+"/roster", alex, "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/sessions/"+mathID+"/roster", other, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/v1/sessions/bogus/stats", office, "").Code)
}

func TestMySession(t *testing.T) {
	e := newTestEnv(t)
	value := e.issueCode(teacher)

	type view struct {
		Session  *session.Session  `json:"session"`
		State    session.State     `json:"state"`
		Markable bool              `json:"markable"`
		Entry    *attendance.Entry `json:"entry"`
	}
	var v view

	e.clock = at(9, 5)
	rec := e.do(http.MethodGet, "/v1/me/session", alex, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &v)
	require.NotNil(t, v.Session)
	assert.Equal(t, mathID, v.Session.ID)
	assert.True(t, v.Markable)
	assert.Nil(t, v.Entry)

	require.Equal(t, http.StatusCreated, e.mark(alex, value).Code)
	v = view{}
	decode(t, e.do(http.MethodGet, "/v1/me/session", alex, ""), &v)
	require.NotNil(t, v.Entry)
	assert.Equal(t, attendance.StatusPresent, v.Entry.Status)

	e.clock = at(10, 5)
	v = view{}
	decode(t, e.do(http.MethodGet, "/v1/me/session", alex, ""), &v)
	require.NotNil(t, v.Session)
	assert.Equal(t, "break:2024-01-15", v.Session.ID)
	assert.False(t, v.Markable)

	e.clock = at(12, 0)
	v = view{}
	decode(t, e.do(http.MethodGet, "/v1/me/session", alex, ""), &v)
	assert.Nil(t, v.Session)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/v1/me/session", nobody, "").Code)
}

func TestMySchedule(t *testing.T) {
	e := newTestEnv(t)
	var out struct {
		Date     string `json:"date"`
		Schedule []struct {
			SessionID string        `json:"session_id"`
			State     session.State `json:"state"`
		} `json:"schedule"`
	}

	e.clock = at(9, 30)
	rec := e.do(http.MethodGet, "/v1/me/schedule", alex, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &out)
	assert.Equal(t, "2024-01-15", out.Date)
	require.Len(t, out.Schedule, 2)
	assert.Equal(t, mathID, out.Schedule[0].SessionID)
	assert.Equal(t, session.StateLive, out.Schedule[0].State)
	assert.Equal(t, session.StateUpcoming, out.Schedule[1].State)

	rec = e.do(http.MethodGet, "/v1/me/schedule?date=2024-01-16", alex, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &out)
	assert.Empty(t, out.Schedule)

	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/v1/me/schedule?date=16-01-2024", alex, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/v1/me/schedule", office, "").Code)
}

func TestCodeEndpoints(t *testing.T) {
	e := newTestEnv(t)
	e.clock = at(9, 30)

	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/sessions/"+mathID+"/code", alex, "").Code)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodPost, "/v1/sessions/"+mathID+"/code", office, "").Code)

	var out struct {
		Code code.Code `json:"code"`
	}
	rec := e.do(http.MethodGet, "/v1/sessions/"+mathID+"/code", office, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	decode(t, rec, &out)
	assert.Len(t, out.Code.Value, code.DefaultLength)
	assert.True(t, out.Code.ExpiresAt.Equal(at(10, 0)))

	rec = e.do(http.MethodGet, "/v1/sessions/"+mathID+"/code/qr.png", teacher, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	e.clock = at(11, 0)
	assert.Equal(t, http.StatusConflict, e.do(http.MethodPost, "/v1/sessions/"+mathID+"/code", teacher, "").Code)
	assert.Equal(t, http.StatusConflict, e.do(http.MethodGet, "/v1/sessions/break:2024-01-15/code", office, "").Code)
	assert.Equal(t, http.StatusNotFound, e.do(http.MethodGet, "/v1/sessions/art:2024-01-15/code", other, "").Code)
}

func TestReports(t *testing.T) {
	e := newTestEnv(t)
	value := e.issueCode(teacher)
	e.clock = at(9, 4)
	require.Equal(t, http.StatusCreated, e.mark(alex, value).Code)
	e.clock = at(11, 0)

	t.Run("records", func(t *testing.T) {
		var out struct {
			Records []attendance.Entry `json:"records"`
		}
		rec := e.do(http.MethodGet, "/v1/people/s1/records", alex, "")
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &out)
		require.Len(t, out.Records, 1)
		assert.Equal(t, mathID, out.Records[0].SessionID)

		assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/people/s1/records", blair, "").Code)
		assert.Equal(t, http.StatusOK, e.do(http.MethodGet, "/v1/people/s1/records", office, "").Code)
	})

	t.Run("summary", func(t *testing.T) {
		var out struct {
			Summary analytics.Summary `json:"summary"`
		}
		rec := e.do(http.MethodGet, "/v1/people/s2/summary?from=2024-01-15&to=2024-01-15", blair, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &out)
		assert.Equal(t, analytics.Summary{PersonID: "s2", Sessions: 1, Absent: 1}, out.Summary)

		rec = e.do(http.MethodGet, "/v1/people/s1/summary?from=yesterday", alex, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec, nil).Error.Fields, "from")
		assert.Equal(t, http.StatusBadRequest,
			e.do(http.MethodGet, "/v1/people/s1/summary?from=2024-02-01&to=2024-01-01", alex, "").Code)
	})

	t.Run("trend", func(t *testing.T) {
		var out struct {
			Scope string            `json:"scope"`
			Trend []analytics.Point `json:"trend"`
		}
		rec := e.do(http.MethodGet, "/v1/analytics/trend?from=2024-01-15&to=2024-01-15", teacher, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &out)
		assert.Equal(t, "t1", out.Scope)
		assert.Equal(t, []analytics.Point{{Label: "2024-01-15", Percentage: 50, Sessions: 1}}, out.Trend)

		rec = e.do(http.MethodGet, "/v1/analytics/trend?from=2024-01-15&to=2024-01-15", office, "")
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &out)
		assert.Equal(t, "", out.Scope)
		assert.Equal(t, []analytics.Point{{Label: "2024-01-15", Percentage: 25, Sessions: 2}}, out.Trend)

		assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/analytics/trend?owner=t2", teacher, "").Code)
		assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/analytics/trend", alex, "").Code)
		assert.Equal(t, http.StatusBadRequest, e.do(http.MethodGet, "/v1/analytics/trend?bucket=month", office, "").Code)
	})

	t.Run("breakdown", func(t *testing.T) {
		var out struct {
			Breakdown map[string]int `json:"breakdown"`
		}
		rec := e.do(http.MethodGet, "/v1/analytics/breakdown?dimension=status&from=2024-01-15&to=2024-01-15", office, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &out)
		assert.Equal(t, map[string]int{"present": 1, "absent": 2}, out.Breakdown)

		rec = e.do(http.MethodGet, "/v1/analytics/breakdown", office, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, decode(t, rec, nil).Error.Fields, "dimension")
	})

	t.Run("volume", func(t *testing.T) {
		var out struct {
			Scope  string           `json:"scope"`
			Volume analytics.Volume `json:"volume"`
		}
		rec := e.do(http.MethodGet, "/v1/analytics/volume", teacher, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &out)
		assert.Equal(t, "t1", out.Scope)
		assert.Equal(t, analytics.Volume{Total: 1, Today: 1, Methods: map[string]int{"code": 1}}, out.Volume)

		rec = e.do(http.MethodGet, "/v1/analytics/volume?owner=t2", office, "")
		require.Equal(t, http.StatusOK, rec.Code)
		decode(t, rec, &out)
		assert.Equal(t, 0, out.Volume.Total)

		assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/analytics/volume", alex, "").Code)
	})
}

func TestGoalsAndTasks(t *testing.T) {
	e := newTestEnv(t)

	rec := e.do(http.MethodPost, "/v1/goals", alex, `{"title":"Be on time all week","target_date":"2024-01-19"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Goal engagement.Goal `json:"goal"`
	}
	decode(t, rec, &created)
	assert.Equal(t, "s1", created.Goal.PersonID)
	assert.Equal(t, at(9, 0), created.Goal.CreatedAt)

	rec = e.do(http.MethodPost, "/v1/goals", alex, `{"target_date":"soon"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := decode(t, rec, nil).Error.Fields
	assert.Contains(t, fields, "title")
	assert.Contains(t, fields, "target_date")

	rec = e.do(http.MethodPost, "/v1/goals", alex, `{"title":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodPost, "/v1/goals", nobody, `{"title":"x"}`).Code)

	var goals struct {
		Goals []engagement.Goal `json:"goals"`
	}
	rec = e.do(http.MethodGet, "/v1/people/s1/goals", office, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &goals)
	require.Len(t, goals.Goals, 1)
	assert.Equal(t, created.Goal.ID, goals.Goals[0].ID)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/people/s1/goals", blair, "").Code)

	e.clock = at(9, 30)
	rec = e.do(http.MethodPost, "/v1/tasks/complete", blair, `{"task_id":"essay-1","title":"Essay"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, http.StatusBadRequest, e.do(http.MethodPost, "/v1/tasks/complete", blair, `{}`).Code)

	var tasks struct {
		Tasks []engagement.TaskCompletion `json:"tasks"`
	}
	rec = e.do(http.MethodGet, "/v1/people/s2/tasks", blair, "")
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &tasks)
	require.Len(t, tasks.Tasks, 1)
	assert.Equal(t, "essay-1", tasks.Tasks[0].TaskID)
	assert.Equal(t, at(9, 30), tasks.Tasks[0].CompletedAt)
	assert.Equal(t, http.StatusForbidden, e.do(http.MethodGet, "/v1/people/s2/tasks", teacher, "").Code)
}

func TestDisplay(t *testing.T) {
	e := newTestEnv(t)
	value := e.issueCode(teacher)
	e.clock = at(9, 4)
	require.Equal(t, http.StatusCreated, e.mark(alex, value).Code)

	var v DisplayView
	rec := e.do(http.MethodGet, "/v1/display/rooms/R101", teacher, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &v)
	require.NotNil(t, v.Session)
	assert.Equal(t, mathID, v.Session.ID)
	require.NotNil(t, v.Code)
	assert.Equal(t, value, v.Code.Value)
	require.NotNil(t, v.Stats)
	assert.Equal(t, 1, v.Stats.Present)
	require.Len(t, v.Recent, 1)
	assert.Equal(t, "Alex", v.Recent[0].Name)
	assert.Equal(t, 5, v.RefreshAfterSeconds)

	v = DisplayView{}
	decode(t, e.do(http.MethodGet, "/v1/display/rooms/R101", alex, ""), &v)
	assert.Nil(t, v.Code)
	assert.NotNil(t, v.Stats)

	e.clock = at(8, 0)
	v = DisplayView{}
	decode(t, e.do(http.MethodGet, "/v1/display/rooms/R101", office, ""), &v)
	assert.Nil(t, v.Session)
	require.NotNil(t, v.Next)
	assert.Equal(t, mathID, v.Next.ID)
	assert.Empty(t, v.Recent)

	assert.Equal(t, http.StatusUnauthorized, e.do(http.MethodGet, "/v1/display/rooms/R101", nobody, "").Code)
}

func TestWriteErrorFallsBackToInternal(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	writeError(c, zerolog.Nop(), errors.New("disk on fire"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, response.ErrInternal, decode(t, rec, nil).Error.Code)
}

func TestParseWindow(t *testing.T) {
	now := at(15, 0)
	w, fields := parseWindow("", "", time.UTC, now)
	require.Nil(t, fields)
	assert.Equal(t, time.Date(2023, 12, 19, 0, 0, 0, 0, time.UTC), w.From)
	assert.Equal(t, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), w.To)

	w, fields = parseWindow("2024-01-01", "2024-01-07", time.UTC, now)
	require.Nil(t, fields)
	assert.Equal(t, 7*24*time.Hour, w.To.Sub(w.From))

	_, fields = parseWindow("", "soon", time.UTC, now)
	assert.Contains(t, fields, "to")
}

func TestHealthz(t *testing.T) {
	gin.SetMode(gin.TestMode)
	up := func(context.Context) bool { return true }
	down := func(context.Context) bool { return false }

	for _, tc := range []struct {
		checks map[string]Checker
		status int
	}{
		{checks: map[string]Checker{"store": up}, status: http.StatusOK},
		{checks: map[string]Checker{"store": up, "redis": down}, status: http.StatusServiceUnavailable},
		{checks: nil, status: http.StatusOK},
	} {
		r := gin.New()
		r.GET("/healthz", NewHealthHandler(tc.checks).Healthz)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, tc.status, rec.Code)
	}
}
