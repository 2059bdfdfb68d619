package workflow

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlas-civic/budget-tracker/internal/common"
)

func TestClientSubmit(t *testing.T) {
	var gotPath, gotAuth, gotQuery string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("X-Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("  wf-abc-123\n"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)
	id, err := c.Submit(context.Background(), "budget_json_extractor", "tok-1",
		map[string]string{"pdf_url": "https://example.com/b.pdf"})

	require.NoError(t, err)
	assert.Equal(t, "wf-abc-123", id, "workflow id is trimmed of whitespace")
	assert.Equal(t, "/api/workflow/budget_json_extractor", gotPath)
	assert.Equal(t, "priority=0", gotQuery)
	assert.Equal(t, "tok-1", gotAuth)
	assert.JSONEq(t, `{"pdf_url":"https://example.com/b.pdf"}`, string(gotBody))
}

func TestClientSubmitBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)
	_, err := c.Submit(context.Background(), "budget_json_extractor", "bad", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSubmission)
}

func TestClientSubmitEmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("   "))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)
	_, err := c.Submit(context.Background(), "budget_json_extractor", "tok", nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrSubmission)
}

func TestClientPoll(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/workflow/wf-abc-123", r.URL.Path)
		assert.Equal(t, "tok-1", r.Header.Get("X-Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "RUNNING"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)
	raw, err := c.Poll(context.Background(), "wf-abc-123", "tok-1")

	require.NoError(t, err)
	assert.Equal(t, "RUNNING", raw["status"])
}

func TestClientPollBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client(), nil)
	_, err := c.Poll(context.Background(), "wf-missing", "tok")

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPollTransport)
}

func TestClientPollDeadlineMidRequest(t *testing.T) {
	blocked := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		close(blocked)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, srv.Client(), nil)
	_, err := c.Poll(ctx, "wf-slow", "tok")

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrPollTimeout, "deadline expiring mid-poll is a timeout")
	assert.NotErrorIs(t, err, common.ErrPollTransport)
	<-blocked
}

func TestStaticKey(t *testing.T) {
	tok, err := StaticKey("pat-123").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pat-123", tok)

	_, err = StaticKey("").Token(context.Background())
	assert.Error(t, err)
}

func TestKeyPairTokenExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/token", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "kid", body["keyId"])
		assert.Equal(t, "ksec", body["keySecret"])
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "session-token"})
	}))
	defer srv.Close()

	p := &KeyPair{BaseURL: srv.URL, KeyID: "kid", KeySecret: "ksec", Client: srv.Client()}
	tok, err := p.Token(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "session-token", tok)
}

func TestKeyPairTokenExchangeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusForbidden)
	}))
	defer srv.Close()

	p := &KeyPair{BaseURL: srv.URL, KeyID: "kid", KeySecret: "wrong", Client: srv.Client()}
	_, err := p.Token(context.Background())
	assert.Error(t, err)
}
