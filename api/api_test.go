package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/imagvfx/autolite"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	svc := autolite.NewMemServices()
	tasks := autolite.NewTaskManager(svc, autolite.TaskOptions{Logger: log})
	systems := autolite.NewSystemManager(svc.SystemService(), &autolite.Shell{}, log)
	_, err := tasks.Create(autolite.TaskSpec{Name: "a", Command: "true"})
	require.NoError(t, err)
	_, err = tasks.Create(autolite.TaskSpec{Name: "a.1", Inherit: "a", Resources: autolite.Resources{"gpu"}})
	require.NoError(t, err)
	require.NoError(t, systems.Create(&autolite.System{Name: "sys", IP: "10.0.0.1"}))
	require.NoError(t, systems.Acquire("sys", "alice"))
	return NewHandler(tasks, systems, log)
}

func TestHandler(t *testing.T) {
	h := newTestHandler(t)
	cases := []struct {
		method   string
		path     string
		form     url.Values
		wantCode int
		wantBody string
	}{
		{method: "GET", path: "/api/tasks", wantCode: 200, wantBody: `"name":"a.1"`},
		{method: "GET", path: "/api/tasks?holding=gpu", wantCode: 200, wantBody: `"resources":"gpu"`},
		{method: "GET", path: "/api/tasks?state=sleeping", wantCode: 400},
		{method: "GET", path: "/api/task?name=a", wantCode: 200, wantBody: `"command":"true"`},
		{method: "GET", path: "/api/task?name=b", wantCode: 404, wantBody: `"error"`},
		{method: "GET", path: "/api/lineage?parent=a", wantCode: 200, wantBody: `"~summary":{"pending":1,"total":1}`},
		{method: "POST", path: "/api/task/reset", form: url.Values{"name": {"a"}}, wantCode: 200, wantBody: "already pending"},
		{method: "POST", path: "/api/task/abort", form: url.Values{"name": {"a"}}, wantCode: 409},
		{method: "GET", path: "/api/task/abort", wantCode: 405},
		{method: "GET", path: "/api/systems?user=alice", wantCode: 200, wantBody: `"user":"alice"`},
		{method: "GET", path: "/api/system?name=sys", wantCode: 200, wantBody: `"ip":"10.0.0.1"`},
	}
	for i, c := range cases {
		var r *http.Request
		if c.form != nil {
			r = httptest.NewRequest(c.method, c.path, strings.NewReader(c.form.Encode()))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		} else {
			r = httptest.NewRequest(c.method, c.path, nil)
		}
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		assert.Equal(t, c.wantCode, w.Code, "%d: %s", i, w.Body.String())
		if c.wantBody != "" {
			assert.Contains(t, w.Body.String(), c.wantBody, "%d", i)
		}
	}
}

func TestHandlerTaskJSON(t *testing.T) {
	h := newTestHandler(t)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/task?name=a.1", nil))
	require.Equal(t, 200, w.Code)
	var got map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "a", got["parent"])
	assert.Equal(t, "<inherit>", got["command"])
	assert.Equal(t, "pending", got["state"])
}
