// Package api serves tasks and systems over http as JSON.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/imagvfx/autolite"
	"github.com/sirupsen/logrus"
)

type apiHandler struct {
	tasks   *autolite.TaskManager
	systems *autolite.SystemManager
	log     logrus.FieldLogger
}

// NewHandler creates a http.Handler serving the api.
func NewHandler(tasks *autolite.TaskManager, systems *autolite.SystemManager, log logrus.FieldLogger) http.Handler {
	h := &apiHandler{tasks: tasks, systems: systems, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/tasks", h.handleTasks)
	mux.HandleFunc("/api/task", h.handleTask)
	mux.HandleFunc("/api/lineage", h.handleLineage)
	mux.HandleFunc("/api/task/reset", h.handleTaskReset)
	mux.HandleFunc("/api/task/abort", h.handleTaskAbort)
	mux.HandleFunc("/api/systems", h.handleSystems)
	mux.HandleFunc("/api/system", h.handleSystem)
	return mux
}

// errorResponse is the body of a failed request.
type errorResponse struct {
	Error string `json:"error"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, autolite.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, autolite.ErrExists), errors.Is(err, autolite.ErrPrecondition):
		return http.StatusConflict
	case autolite.IsPermission(err):
		return http.StatusForbidden
	case autolite.IsWarning(err):
		return http.StatusOK
	case errors.Is(err, autolite.ErrInherit):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *apiHandler) writeError(w http.ResponseWriter, err error) {
	code := statusOf(err)
	if code == http.StatusInternalServerError {
		h.log.Error(err)
	}
	h.write(w, code, errorResponse{Error: err.Error()})
}

func (h *apiHandler) write(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		h.log.Warnf("write response: %v", err)
	}
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

func (h *apiHandler) handleTasks(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	q := r.URL.Query()
	f := autolite.ListFilter{
		Ancestor:   q.Get("ancestor"),
		Holding:    splitTags(q.Get("holding")),
		NotHolding: splitTags(q.Get("not_holding")),
	}
	if s := q.Get("state"); s != "" {
		state, err := autolite.ParseTaskState(s)
		if err != nil {
			h.write(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		f.State = &state
	}
	tasks, err := h.tasks.List(f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, http.StatusOK, tasks)
}

func (h *apiHandler) handleTask(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	t, err := h.tasks.Get(r.URL.Query().Get("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, http.StatusOK, t)
}

func (h *apiHandler) handleLineage(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	ls, err := h.tasks.Lineage(r.URL.Query().Get("parent"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, http.StatusOK, ls)
}

func (h *apiHandler) handleTaskReset(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	name := r.FormValue("name")
	force, _ := strconv.ParseBool(r.FormValue("force"))
	err := h.tasks.Reset(name, force)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeTask(w, name)
}

func (h *apiHandler) handleTaskAbort(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	name := r.FormValue("name")
	err := h.tasks.Abort(name, autolite.AbortOptions{Yes: true})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeTask(w, name)
}

func (h *apiHandler) writeTask(w http.ResponseWriter, name string) {
	t, err := h.tasks.Get(name)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, http.StatusOK, t)
}

func (h *apiHandler) handleSystems(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	f := autolite.SystemFilter{}
	if u, ok := r.URL.Query()["user"]; ok {
		f.User = &u[0]
	}
	systems, err := h.systems.List(f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, http.StatusOK, systems)
}

func (h *apiHandler) handleSystem(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	s, err := h.systems.Get(r.URL.Query().Get("name"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.write(w, http.StatusOK, s)
}
