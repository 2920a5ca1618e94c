package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vodscribe/internal/models"
	"vodscribe/internal/storage"
)

func (ts *testServer) do(t *testing.T, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "")
	rec := ts.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestRunAll_GeneratesJobID(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/run", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	resp := decode[jobResponse](t, rec)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, models.JobKindRunAll, resp.Kind)
	assert.Equal(t, models.JobStatusPending, resp.Status)

	rec = ts.do(t, http.MethodPost, "/api/run", `{"job_id":"mine"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "mine", decode[jobResponse](t, rec).JobID)
}

func TestRunSource(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/sources/UCaaa/run", `{"force":true,"max_items":3,"job_id":"s1"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := ts.queue.last()
	assert.Equal(t, "s1", job.ID)
	assert.Equal(t, "UCaaa", job.Source.ID)
	assert.True(t, job.Force)
	assert.Equal(t, 3, job.MaxItems)

	rec = ts.do(t, http.MethodPost, "/api/sources/UCzzz/run", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sources/UCaaa/run", `{"max_items":-1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRunItem(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/items/run", `{"source_label":"Alpha","item":{"id":"v1","title":"T"},"force":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	job := ts.queue.last()
	assert.Equal(t, "Alpha", job.SourceLabel)
	assert.Equal(t, "v1", job.Item.ID)
	assert.True(t, job.Force)

	rec = ts.do(t, http.MethodPost, "/api/items/run", `{"url":"https://www.youtube.com/watch?v=vx"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	job = ts.queue.last()
	assert.Equal(t, "vx", job.Item.ID)
	assert.Equal(t, "Uploader", job.SourceLabel)

	rec = ts.do(t, http.MethodPost, "/api/items/run", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStopAndJobStatus(t *testing.T) {
	ts := newTestServer(t, "")
	ts.do(t, http.MethodPost, "/api/run", `{"job_id":"a"}`)
	ts.do(t, http.MethodPost, "/api/run", `{"job_id":"b"}`)

	rec := ts.do(t, http.MethodPost, "/api/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decode[map[string]any](t, rec)["removed_count"])

	rec = ts.do(t, http.MethodGet, "/api/jobs/a", "")
	assert.Equal(t, models.JobStatusTerminated, decode[jobResponse](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/api/jobs/nope", "")
	assert.Equal(t, models.JobStatusUnknown, decode[jobResponse](t, rec).Status)
}

func TestTerminate(t *testing.T) {
	ts := newTestServer(t, "")
	ts.do(t, http.MethodPost, "/api/run", `{"job_id":"a"}`)

	rec := ts.do(t, http.MethodDelete, "/api/jobs/a", "")
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[map[string]any](t, rec)
	assert.Equal(t, "terminated", res["status"])
	assert.Equal(t, true, res["removed"])

	rec = ts.do(t, http.MethodPost, "/api/jobs/terminate", `{"job_ids":["a","x"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	batch := decode[[]map[string]any](t, rec)
	require.Len(t, batch, 2)
	assert.Equal(t, "unknown", batch[1]["status"])

	rec = ts.do(t, http.MethodPost, "/api/jobs/terminate", `{"job_ids":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryNewestFirst(t *testing.T) {
	ts := newTestServer(t, "")
	for _, title := range []string{"one", "two", "three"} {
		require.NoError(t, ts.history.Append(models.HistoryRecord{SourceLabel: "Alpha", ItemTitle: title, Outcome: models.OutcomeSuccess}))
	}

	rec := ts.do(t, http.MethodGet, "/api/history?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]models.HistoryRecord](t, rec)
	require.Len(t, got, 2)
	assert.Equal(t, "three", got[0].ItemTitle)
	assert.Equal(t, "two", got[1].ItemTitle)
}

func TestJobOutput(t *testing.T) {
	ts := newTestServer(t, "")
	item := models.Item{ID: "v1", Title: "Talk"}
	rel, err := ts.artifacts.Save("Alpha", item, "# body\n")
	require.NoError(t, err)
	require.NoError(t, ts.history.Append(models.HistoryRecord{JobID: "j1", ArtifactPath: rel, Outcome: models.OutcomeSuccess}))
	require.NoError(t, ts.history.Append(models.HistoryRecord{JobID: "j2", Outcome: models.OutcomeFailure, Detail: "download failed"}))

	rec := ts.do(t, http.MethodGet, "/api/jobs/j1/output", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode[outputResponse](t, rec)
	assert.Equal(t, rel, out.Path)
	assert.Equal(t, "# body\n", out.Content)

	rec = ts.do(t, http.MethodGet, "/api/jobs/j2/output", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "download failed")

	rec = ts.do(t, http.MethodGet, "/api/jobs/j3/output", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSources(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/sources", `{"input":"https://www.youtube.com/@beta"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	added := decode[addSourceResponse](t, rec)
	assert.Equal(t, models.Source{ID: "UCbbb", Name: "Beta"}, added.Source)

	rec = ts.do(t, http.MethodPost, "/api/sources", `{"input":"UCbbb","name":"Renamed"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[addSourceResponse](t, rec).Added)

	rec = ts.do(t, http.MethodGet, "/api/sources", "")
	list := decode[[]models.Source](t, rec)
	require.Len(t, list, 2)
	assert.Equal(t, "Renamed", list[1].Name)

	_, err := ts.state.Update(func(st *models.MonitorState) error {
		st.LastSeen["UCbbb"] = "v9"
		return nil
	})
	require.NoError(t, err)

	rec = ts.do(t, http.MethodDelete, "/api/sources/UCbbb", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	st, err := ts.state.Load()
	require.NoError(t, err)
	assert.NotContains(t, st.LastSeen, "UCbbb")

	rec = ts.do(t, http.MethodDelete, "/api/sources/UCbbb", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/sources", `{"input":" "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSourceItemsAndMeta(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodGet, "/api/sources/UCaaa/items?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode[[]models.Item](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "v2", items[0].ID)

	rec = ts.do(t, http.MethodGet, "/api/items/meta?url=x", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "vx", decode[models.Item](t, rec).ID)

	rec = ts.do(t, http.MethodGet, "/api/items/meta", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMonitor(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/monitor/poll", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/monitor/poll", `{"max_per_source":4}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/monitor/poll?max_per_source=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int{1, 4, 2}, ts.poller.caps)

	rec = ts.do(t, http.MethodPost, "/api/monitor/poll?max_per_source=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/monitor/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFiles(t *testing.T) {
	ts := newTestServer(t, "")
	rel, err := ts.artifacts.Save("Alpha", models.Item{ID: "v1", Title: "Talk"}, "text")
	require.NoError(t, err)
	_, err = ts.artifacts.Save("Beta", models.Item{ID: "v2", Title: "Other"}, "text")
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/files?label=Alpha", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[fileListResponse](t, rec)
	assert.ElementsMatch(t, []string{"Alpha", "Beta"}, list.Labels)
	require.Len(t, list.Files, 1)
	assert.Equal(t, rel, list.Files[0].Path)

	rec = ts.do(t, http.MethodGet, "/api/files/content?path="+rel, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text", decode[map[string]string](t, rec)["content"])

	rec = ts.do(t, http.MethodGet, "/api/files/download?path="+rel, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "attachment")

	rec = ts.do(t, http.MethodGet, "/api/files/content?path=../secret.md", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/api/files?path="+rel, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = ts.do(t, http.MethodGet, "/api/files/content?path="+rel, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDiagnostics(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(t, http.MethodPost, "/api/diagnostics", "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	started := decode[diagnosticsStarted](t, rec)
	assert.True(t, strings.HasPrefix(started.JobID, DiagnosticsPrefix))
	assert.Equal(t, "v2", started.Item.ID)

	job := ts.queue.last()
	assert.True(t, job.Force)
	assert.Equal(t, DiagnosticsLabel, job.SourceLabel)
	assert.NotZero(t, job.Clip)

	require.NoError(t, ts.history.Append(models.HistoryRecord{JobID: started.JobID, Outcome: models.OutcomeSuccess}))
	rec = ts.do(t, http.MethodGet, "/api/diagnostics/"+started.JobID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[diagnosticsReport](t, rec)
	assert.Equal(t, models.JobStatusPending, report.Status)
	require.NotNil(t, report.Record)
	assert.Equal(t, models.OutcomeSuccess, report.Record.Outcome)

	rec = ts.do(t, http.MethodGet, "/api/diagnostics/job-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/diagnostics", `{"source_id":"UCnone"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPIKeyGate(t *testing.T) {
	ts := newTestServer(t, "secret")

	rec := ts.do(t, http.MethodPost, "/api/run", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/run", "", "X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/run", "", "X-API-Key", "secret")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// 読み取り専用の状態取得はキー不要
	rec = ts.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusPage(t *testing.T) {
	ts := newTestServer(t, "")
	ts.queue.snapshot = models.RunSnapshot{OverallStatus: models.OverallIdle, Progress: 100}

	rec := ts.do(t, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.Contains(t, rec.Body.String(), `value="100"`)
}

func TestStorageStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, storageStatus(storage.ErrInvalidPath))
	assert.Equal(t, http.StatusNotFound, storageStatus(storage.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, storageStatus(assert.AnError))
}
