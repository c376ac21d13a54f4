package updateOfferStatus_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	updateOfferStatus "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/offers/update_status"
	"github.com/TimoDeg/margin-hunter/internal/models"
	"github.com/TimoDeg/margin-hunter/internal/storage"

	"github.com/go-chi/chi"
	validator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type updaterMock struct {
	updateErr error
	offer     models.Offer

	gotID     int64
	gotStatus string
}

func (m *updaterMock) UpdateOfferStatus(_ context.Context, offerID int64, status string) error {
	m.gotID = offerID
	m.gotStatus = status
	return m.updateErr
}

func (m *updaterMock) OfferByID(_ context.Context, _ int64) (models.Offer, error) {
	return m.offer, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, updater *updaterMock, id, body string) *httptest.ResponseRecorder {
	t.Helper()

	router := chi.NewRouter()
	router.Put("/offers/{id}/status", updateOfferStatus.New(discardLogger(), updater, validator.New()))

	req := httptest.NewRequest(http.MethodPut, "/offers/"+id+"/status", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	return rec
}

func TestUpdateStatus_Success(t *testing.T) {
	updater := &updaterMock{
		offer: models.Offer{ID: 7, Status: "watched"},
	}

	rec := do(t, updater, "7", `{"status": "watched"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(7), updater.gotID)
	assert.Equal(t, "watched", updater.gotStatus)

	var response updateOfferStatus.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "OK", response.Status)
	assert.Equal(t, "watched", response.Offer.Status)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	updater := &updaterMock{updateErr: storage.ErrOfferNotFound}

	rec := do(t, updater, "99", `{"status": "watched"}`)

	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateStatus_MissingStatus(t *testing.T) {
	rec := do(t, &updaterMock{}, "7", `{}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatus_InvalidID(t *testing.T) {
	rec := do(t, &updaterMock{}, "abc", `{"status": "watched"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
