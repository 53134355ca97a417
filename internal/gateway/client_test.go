package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestScalarAcceptsNumbersStringsAndNull(t *testing.T) {
	var v struct {
		A Scalar `json:"a"`
		B Scalar `json:"b"`
		C Scalar `json:"c"`
		D Scalar `json:"d"`
	}
	err := json.Unmarshal([]byte(`{"a": 630640156086198, "b": "1000", "c": null, "d": 4.5}`), &v)
	require.NoError(t, err)

	assert.Equal(t, "630640156086198", v.A.String())
	assert.Equal(t, "1000", v.B.String())
	assert.True(t, v.C.Empty())
	assert.Equal(t, "4.5", v.D.String())
	assert.True(t, Scalar("0").Empty())
}

func TestUserContextIdentityPrefersStringIDs(t *testing.T) {
	var uc UserContext
	raw := `{"personId": 11, "schools": [{"id": 22}], "eduGroups": [{"id": 1, "id_str": "33"}]}`
	require.NoError(t, json.Unmarshal([]byte(raw), &uc))

	person, school, group := uc.Identity()
	assert.Equal(t, "11", person)
	assert.Equal(t, "22", school)
	assert.Equal(t, "33", group)
}

func TestUserContextIdentityMissingGroup(t *testing.T) {
	var uc UserContext
	require.NoError(t, json.Unmarshal([]byte(`{"personId": 11, "schools": [{"id": 22}]}`), &uc))

	_, _, group := uc.Identity()
	assert.Empty(t, group)
}

func TestScheduleSendsTokenAndRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/persons/1/groups/2/schedules", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("Access-Token"))
		assert.Equal(t, "2024-03-04T00:00:00", r.URL.Query().Get("startDate"))
		assert.Equal(t, "2024-03-04T23:59:59", r.URL.Query().Get("endDate"))
		_, _ = w.Write([]byte(`{"days": [{"date": "2024-03-04T00:00:00", "lessons": [{"id": 5, "number": 1, "subjectId": 7}]}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", time.Second, zap.NewNop())
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.Local)
	sched, err := c.Schedule(context.Background(), "1", "2", day, day.Add(24*time.Hour-time.Second))
	require.NoError(t, err)
	require.Len(t, sched.Days, 1)
	require.Len(t, sched.Days[0].Lessons, 1)
	assert.Equal(t, "5", sched.Days[0].Lessons[0].LessonID())
	assert.Equal(t, 1, *sched.Days[0].Lessons[0].Number)
}

func TestGetReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"type":"apiAccessDenied"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "secret", time.Second, nil)
	_, err := c.GroupSubjects(context.Background(), "2")

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.Status)
	assert.Contains(t, statusErr.Body, "apiAccessDenied")
}

func TestEndpointLabelCollapsesIDs(t *testing.T) {
	assert.Equal(t, "edu-groups/:id/subjects", endpointLabel("edu-groups/12345/subjects"))
	assert.Equal(t, "users/me/context", endpointLabel("/users/me/context"))
}
