package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/auditkit/webaudit/internal/audit"
)

// newFakeService spins up an httptest server that walks one session through
// queued -> in_progress -> completed.
func newFakeService(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()

	var headers []string
	polls := 0

	r := chi.NewRouter()
	r.Post("/v1/sessions", func(w http.ResponseWriter, req *http.Request) {
		headers = append(headers, req.Header.Get("Authorization"), req.Header.Get("X-Request-ID"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(req.Body).Decode(&body))
		require.NotEmpty(t, body["content"])
		writeJSON(t, w, map[string]string{"id": "sess-77"})
	})
	r.Post("/v1/sessions/{id}/content", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "sess-77", chi.URLParam(req, "id"))
		w.WriteHeader(http.StatusNoContent)
	})
	r.Post("/v1/sessions/{id}/runs", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, map[string]string{"id": "run-9", "status": "queued"})
	})
	r.Get("/v1/sessions/{id}/runs/{rid}", func(w http.ResponseWriter, req *http.Request) {
		require.Equal(t, "run-9", chi.URLParam(req, "rid"))
		polls++
		status := "in_progress"
		if polls >= 3 {
			status = "completed"
		}
		writeJSON(t, w, map[string]string{"id": "run-9", "status": status})
	})
	r.Get("/v1/sessions/{id}/output", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(t, w, map[string]string{"text": "no violations found"})
	})
	r.Post("/v1/sessions/{id}/runs/{rid}/cancel", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, &headers
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestClientDrivesFullProtocol(t *testing.T) {
	t.Parallel()

	srv, headers := newFakeService(t)
	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "secret"}, nil)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()

	sessionID, err := c.CreateSession(ctx, "page text")
	require.NoError(t, err)
	require.Equal(t, "sess-77", sessionID)

	require.NoError(t, c.SubmitContent(ctx, sessionID, "page text"))

	runID, err := c.StartRun(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, "run-9", runID)

	statuses := []audit.RunStatus{}
	for i := 0; i < 3; i++ {
		status, err := c.PollRun(ctx, sessionID, runID)
		require.NoError(t, err)
		statuses = append(statuses, status)
	}
	require.Equal(t, []audit.RunStatus{
		audit.RunStatusInProgress,
		audit.RunStatusInProgress,
		audit.RunStatusCompleted,
	}, statuses)

	text, err := c.FetchOutput(ctx, sessionID)
	require.NoError(t, err)
	require.Equal(t, "no violations found", text)

	require.NoError(t, c.CancelRun(ctx, sessionID, runID))

	require.Equal(t, "Bearer secret", (*headers)[0])
	require.NotEmpty(t, (*headers)[1], "request id header must be set")
}

func TestClientErrorStatusIsSurfaced(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = c.CreateSession(context.Background(), "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "503")
}

func TestClientMissingIDsAreErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL}, nil)
	require.NoError(t, err)

	_, err = c.CreateSession(context.Background(), "x")
	require.ErrorContains(t, err, "missing session id")

	_, err = c.StartRun(context.Background(), "sess")
	require.ErrorContains(t, err, "missing run id")
}

func TestClientRequiresBaseURL(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
}
