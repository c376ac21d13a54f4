package createProduct_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	createProduct "github.com/TimoDeg/margin-hunter/internal/http-server/handlers/products/create"
	"github.com/TimoDeg/margin-hunter/internal/models"

	validator "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type saverMock struct {
	saved models.Product
	id    int64
	err   error
}

func (m *saverMock) SaveProduct(_ context.Context, product models.Product) (int64, error) {
	m.saved = product
	return m.id, m.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, saver *saverMock, body string) *httptest.ResponseRecorder {
	t.Helper()

	handler := createProduct.New(discardLogger(), saver, validator.New())

	req := httptest.NewRequest(http.MethodPost, "/products", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	return rec
}

func TestCreate_Success(t *testing.T) {
	saver := &saverMock{id: 42}

	rec := do(t, saver, `{
		"name": "RTX 3080",
		"category": "gpu",
		"brands": ["ASUS", "MSI"],
		"filters": {"condition": "3000"},
		"price_min": 300,
		"price_max": 600
	}`)

	require.Equal(t, http.StatusCreated, rec.Code)

	var response createProduct.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, int64(42), response.ProductID)
	assert.Equal(t, "OK", response.Status)

	assert.Equal(t, "RTX 3080", saver.saved.Name)
	assert.Equal(t, "gpu", saver.saved.Category)
	assert.True(t, saver.saved.Active, "active defaults to true")
}

func TestCreate_ActiveExplicitlyFalse(t *testing.T) {
	saver := &saverMock{id: 1}

	rec := do(t, saver, `{"name": "RTX 3080", "category": "gpu", "active": false}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.False(t, saver.saved.Active)
}

func TestCreate_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing name", `{"category": "gpu"}`},
		{"missing category", `{"name": "RTX 3080"}`},
		{"negative price_min", `{"name": "RTX 3080", "category": "gpu", "price_min": -1}`},
		{"price_max below price_min", `{"name": "RTX 3080", "category": "gpu", "price_min": 500, "price_max": 100}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, &saverMock{}, tc.body)

			require.Equal(t, http.StatusBadRequest, rec.Code)

			var response createProduct.Response
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
			assert.Equal(t, "Error", response.Status)
			assert.NotEmpty(t, response.Error)
		})
	}
}

func TestCreate_MalformedBody(t *testing.T) {
	rec := do(t, &saverMock{}, `{not json`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
