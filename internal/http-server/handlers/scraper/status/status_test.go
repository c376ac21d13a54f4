package scraperStatus_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	scraperStatus "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/scraper/status"
	"github.com/TimoDeg/margin-hunter/internal/scraper"
	"github.com/TimoDeg/margin-hunter/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type providerMock struct {
	status scraper.RunStatus
}

func (m *providerMock) Status() scraper.RunStatus {
	return m.status
}

type mirrorMock struct {
	data  []byte
	err   error
	reads int
}

func (m *mirrorMock) GetRunStatus(_ context.Context) ([]byte, error) {
	m.reads++
	return m.data, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, provider *providerMock, mirror *mirrorMock) scraperStatus.Response {
	t.Helper()

	handler := scraperStatus.New(discardLogger(), provider, mirror)

	req := httptest.NewRequest(http.MethodGet, "/scraper/status", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var response scraperStatus.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))

	return response
}

func TestStatus_LocalRunnerStateWins(t *testing.T) {
	ranAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	provider := &providerMock{status: scraper.RunStatus{
		Phase:       scraper.PhaseOK,
		LastRunAt:   &ranAt,
		LastCreated: 2,
	}}
	mirror := &mirrorMock{data: []byte(`{"status":"error","last_error":"stale"}`)}

	response := do(t, provider, mirror)

	assert.Equal(t, scraper.PhaseOK, response.Run.Phase)
	assert.Equal(t, 2, response.Run.LastCreated)
	assert.Zero(t, mirror.reads, "mirror must not be consulted when the local runner has run")
}

func TestStatus_FallsBackToMirroredRun(t *testing.T) {
	provider := &providerMock{status: scraper.RunStatus{Phase: scraper.PhaseIdle}}
	mirror := &mirrorMock{
		data: []byte(`{"status":"ok","last_run_at":"2024-05-01T12:00:00Z","last_created":3}`),
	}

	response := do(t, provider, mirror)

	assert.Equal(t, scraper.PhaseOK, response.Run.Phase)
	assert.Equal(t, 3, response.Run.LastCreated)
	require.NotNil(t, response.Run.LastRunAt)
	assert.Equal(t, 1, mirror.reads)
}

func TestStatus_IdleWhenNothingMirrored(t *testing.T) {
	provider := &providerMock{status: scraper.RunStatus{Phase: scraper.PhaseIdle}}
	mirror := &mirrorMock{err: storage.ErrStatusNotFound}

	response := do(t, provider, mirror)

	assert.Equal(t, scraper.PhaseIdle, response.Run.Phase)
	assert.Equal(t, 0, response.Run.LastCreated)
}

func TestStatus_MalformedMirrorPayloadIgnored(t *testing.T) {
	provider := &providerMock{status: scraper.RunStatus{Phase: scraper.PhaseIdle}}
	mirror := &mirrorMock{data: []byte("{not json")}

	response := do(t, provider, mirror)

	assert.Equal(t, scraper.PhaseIdle, response.Run.Phase)
}
