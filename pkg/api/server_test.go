package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/inkharmony/inkharmony/pkg/agents"
	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/config"
	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/providers"
	"github.com/inkharmony/inkharmony/pkg/workflow"
)

// newTestServer spins up the HTTP layer against a live in-process maestro.
func newTestServer(t *testing.T) (*httptest.Server, *workflow.Manager) {
	t.Helper()

	cfg := config.Default()
	cfg.StorageDir = t.TempDir()

	b := bus.New()
	books := workflow.NewManager(cfg.StorageDir, cfg.Phases)
	maestro := agents.NewMaestro(b, books, nil, providers.RetryConfig{MaxAttempts: 1, BackoffBase: time.Millisecond, BackoffMultiplier: 2})

	ctx, cancel := context.WithCancel(context.Background())
	go agents.Run(ctx, b, maestro)

	s := NewServer(cfg, b, books, nil, nil)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
		b.Close()
	})
	return ts, books
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", decodeJSON(t, resp)["status"])
}

func TestCreateBookFlow(t *testing.T) {
	ts, books := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/books", map[string]string{
		"title": "Starfall", "genre": "scifi", "description": "a space opera",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeJSON(t, resp)
	bookID, _ := created["book_id"].(string)
	require.NotEmpty(t, bookID)

	// The workflow is running its first phase.
	st := books.Status(bookID)
	require.NotNil(t, st)
	require.Equal(t, domain.WorkflowRunning, st.Status)

	// Status endpoint reflects the same.
	resp, err := http.Get(ts.URL + "/api/books/" + bookID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	status := decodeJSON(t, resp)
	require.Equal(t, "running", status["status"])

	// List endpoint includes the new book.
	resp, err = http.Get(ts.URL + "/api/books")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	require.Equal(t, bookID, list[0]["book_id"])
}

func TestCreateBookRequiresTitle(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/books", map[string]string{"genre": "scifi"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestBookStatusNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/books/book_nope")
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestBookContentAndCover(t *testing.T) {
	ts, books := newTestServer(t)
	bookID, err := books.Create(domain.Payload{"title": "Starfall"})
	require.NoError(t, err)

	store := books.Get(bookID).Storage()
	_, err = store.SaveComponent("outline", "three acts", "")
	require.NoError(t, err)
	payload := []byte{0x89, 'P', 'N', 'G'}
	_, err = store.SaveImage("cover", payload, "png")
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("%s/api/books/%s/content/outline", ts.URL, bookID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "three acts", decodeJSON(t, resp)["content"])

	resp, err = http.Get(fmt.Sprintf("%s/api/books/%s/cover", ts.URL, bookID))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	resp.Body.Close()

	resp, err = http.Get(fmt.Sprintf("%s/api/books/%s/content/missing", ts.URL, bookID))
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestProgressWorkflowEndpoint(t *testing.T) {
	ts, books := newTestServer(t)
	bookID, err := books.Create(domain.Payload{"title": "Starfall"})
	require.NoError(t, err)
	books.Start(bookID)

	resp := postJSON(t, ts.URL+"/api/books/"+bookID+"/progress", map[string]string{"action": "next"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeJSON(t, resp)
	require.Equal(t, "advanced to next phase", out["outcome"])
}

func TestAssignTaskUnknownBookIsBadGateway(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/api/books/book_nope/tasks", map[string]interface{}{
		"agent": "outline",
	})
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()
}

func TestExportEndpoint(t *testing.T) {
	ts, books := newTestServer(t)
	bookID, err := books.Create(domain.Payload{"title": "Starfall"})
	require.NoError(t, err)
	store := books.Get(bookID).Storage()
	_, err = store.SaveComponent("outline", "three acts", "")
	require.NoError(t, err)

	dir := t.TempDir()
	resp := postJSON(t, ts.URL+"/api/books/"+bookID+"/export", map[string]string{"dir": dir})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeJSON(t, resp)
	files, ok := out["files"].(map[string]interface{})
	require.True(t, ok)
	require.Contains(t, files, "outline")
}