package commands

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/venue-ops/collab/internal/app/lifecycle"
	"github.com/venue-ops/collab/internal/collab"
)

func init() {
	color.NoColor = true
}

type seenRequest struct {
	method string
	path   string
	auth   string
	body   string
}

func newAPI(t *testing.T, routes map[string]func(w http.ResponseWriter)) (*httptest.Server, *[]seenRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []seenRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, seenRequest{method: r.Method, path: r.URL.Path, auth: r.Header.Get("Authorization"), body: string(raw)})
		mu.Unlock()
		handler, ok := routes[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
			return
		}
		handler(w)
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func jsonReply(status int, payload any) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--api", srv.URL, "--token", "tok"}, args...))
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestShowRendersSnapshot(t *testing.T) {
	milestones := []collab.Milestone{
		{ID: "m-1", Title: "Contract", AssignedTo: collab.AssigneeBoth, Status: collab.MilestoneCompleted},
		{ID: "m-2", Title: "Rider", AssignedTo: collab.AssigneeArtist, Status: collab.MilestonePending, Position: 1},
	}
	progress := collab.ComputeProgress(milestones)
	snap := lifecycle.Snapshot{
		Invitation:       collab.Invitation{ID: "inv-1", Status: collab.StatusNegotiation, Progress: progress.Percent},
		Milestones:       milestones,
		Progress:         progress,
		Band:             collab.BandFor(progress.Percent).String(),
		LegalTransitions: collab.LegalTransitions(progress.Percent),
		Messages: []collab.Message{{
			ID: "msg-1", SenderType: collab.RoleSystem, Content: "Invitation sent",
			CreatedAt: time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC),
		}},
	}
	srv, seen := newAPI(t, map[string]func(http.ResponseWriter){
		"GET /api/v1/invitations/inv-1": jsonReply(http.StatusOK, snap),
	})

	out, _, err := run(t, srv, "show", "inv-1")
	require.NoError(t, err)
	assert.Contains(t, out, "progress: 50% (mid)")
	assert.Contains(t, out, "allowed:  preparation, cancelled")
	assert.Contains(t, out, "[x] m-1  Contract")
	assert.Contains(t, out, "[ ] m-2  Rider (artist, pending)  <- current")
	assert.Contains(t, out, "2026-05-01 09:30 [system] Invitation sent")
	require.Len(t, *seen, 1)
	assert.Equal(t, "Bearer tok", (*seen)[0].auth)
}

func TestStatusReportsChangeAndWarnings(t *testing.T) {
	srv, seen := newAPI(t, map[string]func(http.ResponseWriter){
		"POST /api/v1/invitations/inv-1/status": jsonReply(http.StatusOK, map[string]any{
			"invitation":      collab.Invitation{ID: "inv-1", Status: collab.StatusConfirmed},
			"status_changed":  true,
			"previous_status": "preparation",
			"warnings":        []string{"roster sync: boom"},
		}),
	})

	out, errOut, err := run(t, srv, "status", "inv-1", "Confirmed")
	require.NoError(t, err)
	assert.Contains(t, out, "Status changed from preparation to confirmed")
	assert.Contains(t, errOut, "warning: roster sync: boom")
	assert.JSONEq(t, `{"status":"confirmed"}`, (*seen)[0].body)
}

func TestStatusRejectsUnknownStatusLocally(t *testing.T) {
	srv, seen := newAPI(t, nil)

	_, _, err := run(t, srv, "status", "inv-1", "maybe")
	require.ErrorIs(t, err, collab.ErrInvalidStatus)
	assert.Empty(t, *seen)
}

func TestStatusConflictSurfacesInvalidTransition(t *testing.T) {
	srv, _ := newAPI(t, map[string]func(http.ResponseWriter){
		"POST /api/v1/invitations/inv-1/status": jsonReply(http.StatusConflict, map[string]string{"error": "status transition not allowed for current progress"}),
	})

	_, _, err := run(t, srv, "status", "inv-1", "confirmed")
	require.ErrorIs(t, err, collab.ErrInvalidTransition)

	var buf bytes.Buffer
	printError(&buf, err)
	assert.Contains(t, buf.String(), "collabctl show")
}

func TestCompleteAndReopen(t *testing.T) {
	srv, seen := newAPI(t, map[string]func(http.ResponseWriter){
		"PATCH /api/v1/invitations/inv-1/milestones/m-2": jsonReply(http.StatusOK, map[string]any{
			"progress": map[string]int{"percent": 100},
		}),
	})

	out, _, err := run(t, srv, "complete", "inv-1", "m-2")
	require.NoError(t, err)
	assert.Contains(t, out, "Progress 100%")
	assert.Contains(t, (*seen)[0].body, `"status":"completed"`)

	_, _, err = run(t, srv, "complete", "inv-1", "m-2", "--reopen")
	require.NoError(t, err)
	assert.Contains(t, (*seen)[1].body, `"status":"pending"`)
}

func TestCompleteForbidden(t *testing.T) {
	srv, _ := newAPI(t, map[string]func(http.ResponseWriter){
		"PATCH /api/v1/invitations/inv-1/milestones/m-2": jsonReply(http.StatusForbidden, map[string]string{"error": "not authorized"}),
	})

	_, _, err := run(t, srv, "complete", "inv-1", "m-2")
	require.ErrorIs(t, err, collab.ErrNotAuthorized)
}

func TestSayJoinsArguments(t *testing.T) {
	srv, seen := newAPI(t, map[string]func(http.ResponseWriter){
		"POST /api/v1/invitations/inv-1/messages": jsonReply(http.StatusCreated, collab.Message{ID: "msg-9"}),
	})

	out, _, err := run(t, srv, "say", "inv-1", "sound", "check", "at", "six")
	require.NoError(t, err)
	assert.Contains(t, out, "Posted message msg-9")
	assert.JSONEq(t, `{"content":"sound check at six"}`, (*seen)[0].body)
}

func TestLoginPrintsToken(t *testing.T) {
	srv, _ := newAPI(t, map[string]func(http.ResponseWriter){
		"POST /api/v1/auth/login": jsonReply(http.StatusOK, map[string]string{
			"access_token": "abc", "username": "club", "kind": "organizer",
		}),
	})

	out, _, err := run(t, srv, "login", "--username", "club", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as club (organizer)")
	assert.Contains(t, out, "export COLLAB_TOKEN=abc")
}

func TestRefresh(t *testing.T) {
	srv, _ := newAPI(t, map[string]func(http.ResponseWriter){
		"POST /api/v1/invitations/inv-1/refresh": jsonReply(http.StatusOK, map[string]any{
			"invitation": collab.Invitation{ID: "inv-1", Status: collab.StatusCompleted},
			"progress":   map[string]int{"percent": 100},
		}),
	})

	out, _, err := run(t, srv, "refresh", "inv-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Progress 100%, status completed")
}
