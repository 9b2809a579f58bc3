// Package remotetest provides an in-process task server for tests.
package remotetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prioritylab/prio/internal/types"
)

// RecordedRequest stores information about a request made to the server.
type RecordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Body    []byte
}

// Server is a fake task server backed by a map. It records every request
// and can be told to fail or drop connections.
type Server struct {
	Server *httptest.Server
	mu     sync.Mutex

	tasks    map[string]*types.Task
	requests []RecordedRequest
	token    string
	now      func() time.Time

	offline      bool
	failStatus   int
	failRequests int
	failMethod   string

	garbleRequests int
	garbleMethod   string
}

// NewServer starts a server. When token is non-empty every request must
// carry it as a bearer credential.
func NewServer(token string) *Server {
	s := &Server{
		tasks: make(map[string]*types.Task),
		token: token,
		now:   time.Now,
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL returns the server base URL.
func (s *Server) URL() string { return s.Server.URL }

// Close shuts the server down.
func (s *Server) Close() { s.Server.Close() }

// SetClock overrides the time used to stamp tasks that arrive without one.
func (s *Server) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetOffline makes the server drop every connection without answering, as
// if the network were down.
func (s *Server) SetOffline(offline bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offline = offline
}

// FailNext answers the next n requests with status. A non-empty method
// restricts the failures to that method.
func (s *Server) FailNext(n, status int, method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRequests = n
	s.failStatus = status
	s.failMethod = method
}

// GarbleNext answers the next n requests with 200 and an HTML page instead
// of JSON, the way a captive portal does. The request is not applied. A
// non-empty method restricts it to that method.
func (s *Server) GarbleNext(n int, method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.garbleRequests = n
	s.garbleMethod = method
}

// Put stores a task directly, bypassing the API.
func (s *Server) Put(t *types.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.Wire()
}

// Task returns a copy of a stored task.
func (s *Server) Task(id string) (*types.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t.Clone(), ok
}

// Tasks returns copies of all stored tasks ordered by id.
func (s *Server) Tasks() []*types.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

// Requests returns all recorded requests.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// ClearRequests forgets recorded requests.
func (s *Server) ClearRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

func (s *Server) sortedLocked() []*types.Task {
	out := make([]*types.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	_ = r.Body.Close()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.offline {
		if hj, ok := w.(http.Hijacker); ok {
			if conn, _, err := hj.Hijack(); err == nil {
				_ = conn.Close()
				return
			}
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	s.requests = append(s.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header.Clone(),
		Body:    body,
	})

	if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}
	if s.failRequests > 0 && (s.failMethod == "" || s.failMethod == r.Method) {
		s.failRequests--
		writeJSON(w, s.failStatus, map[string]string{"error": http.StatusText(s.failStatus)})
		return
	}
	if s.garbleRequests > 0 && (s.garbleMethod == "" || s.garbleMethod == r.Method) {
		s.garbleRequests--
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "<html><body>Sign in to continue</body></html>")
		return
	}

	id, hasID := strings.CutPrefix(r.URL.Path, "/tasks/")
	switch {
	case r.URL.Path == "/tasks" && r.Method == http.MethodHead:
		w.WriteHeader(http.StatusOK)
	case r.URL.Path == "/tasks" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, s.sortedLocked())
	case r.URL.Path == "/tasks" && r.Method == http.MethodPost:
		s.create(w, body)
	case hasID && id != "" && r.Method == http.MethodPut:
		s.update(w, id, body)
	case hasID && id != "" && r.Method == http.MethodDelete:
		if _, ok := s.tasks[id]; !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
			return
		}
		delete(s.tasks, id)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
	}
}

func (s *Server) create(w http.ResponseWriter, body []byte) {
	var t types.Task
	if err := json.Unmarshal(body, &t); err != nil || t.ID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid task"})
		return
	}
	if _, exists := s.tasks[t.ID]; exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "task already exists"})
		return
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = s.now().UTC()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}
	s.tasks[t.ID] = t.Wire()
	writeJSON(w, http.StatusCreated, s.tasks[t.ID])
}

// update overlays the JSON fields of body onto the stored task.
func (s *Server) update(w http.ResponseWriter, id string, body []byte) {
	existing, ok := s.tasks[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Not found"})
		return
	}
	var patch map[string]json.RawMessage
	if err := json.Unmarshal(body, &patch); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid patch"})
		return
	}
	current, _ := json.Marshal(existing)
	var merged map[string]json.RawMessage
	_ = json.Unmarshal(current, &merged)
	for k, v := range patch {
		if k == "id" {
			continue
		}
		if string(v) == "null" {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}
	if _, ok := patch["updatedAt"]; !ok {
		merged["updatedAt"], _ = json.Marshal(s.now().UTC())
	}
	out, _ := json.Marshal(merged)
	var t types.Task
	if err := json.Unmarshal(out, &t); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.tasks[id] = t.Wire()
	writeJSON(w, http.StatusOK, s.tasks[id])
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
