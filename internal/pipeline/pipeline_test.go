package pipeline

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// engineStub fakes the workflow engine for pipeline tests: submissions return
// sequential workflow ids, polls serve a scripted sequence of states
// (repeating the last one), and individual submissions can be made to fail.
type engineStub struct {
	mu         sync.Mutex
	submits    []submitCall
	states     []map[string]any
	polls      int
	failSubmit func(n int) bool
}

type submitCall struct {
	Workflow string
	Payload  map[string]string
}

func (e *engineStub) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/api/workflow/")
		switch r.Method {
		case http.MethodPost:
			e.mu.Lock()
			var payload map[string]string
			_ = json.NewDecoder(r.Body).Decode(&payload)
			e.submits = append(e.submits, submitCall{Workflow: name, Payload: payload})
			n := len(e.submits)
			fail := e.failSubmit != nil && e.failSubmit(n)
			e.mu.Unlock()
			if fail {
				http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
				return
			}
			w.Header().Set("Content-Type", "text/plain")
			fmt.Fprintf(w, "wf-test-%d", n)
		case http.MethodGet:
			e.mu.Lock()
			idx := e.polls
			if idx >= len(e.states) {
				idx = len(e.states) - 1
			}
			state := e.states[idx]
			e.polls++
			e.mu.Unlock()
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(state)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (e *engineStub) submitCalls() []submitCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]submitCall, len(e.submits))
	copy(out, e.submits)
	return out
}

func runningState() map[string]any {
	return map[string]any{"status": "RUNNING", "tasks": []any{map[string]any{}}}
}
