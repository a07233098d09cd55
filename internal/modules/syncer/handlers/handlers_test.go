package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/hedgebook/internal/modules/syncer"
)

type fakeController struct {
	status  syncer.Status
	err     error
	flushes int
}

func (f *fakeController) Status() syncer.Status { return f.status }

func (f *fakeController) Flush(context.Context) error {
	f.flushes++
	return f.err
}

func serve(t *testing.T, ctrl Controller, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	NewHandler(ctrl, zerolog.Nop()).RegisterRoutes(router)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandleGetStatus(t *testing.T) {
	ctrl := &fakeController{status: syncer.Status{
		State:     syncer.StateSynced,
		Revision:  12,
		Conflicts: 1,
		DeviceID:  "dev-a",
	}}

	rec := serve(t, ctrl, http.MethodGet, "/sync/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var got syncer.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, ctrl.status, got)
}

func TestHandleFlush(t *testing.T) {
	ctrl := &fakeController{status: syncer.Status{State: syncer.StateSynced}}

	rec := serve(t, ctrl, http.MethodPost, "/sync/flush")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.flushes)
}

func TestHandleFlush_Failure(t *testing.T) {
	ctrl := &fakeController{
		status: syncer.Status{State: syncer.StateError, LastError: "remote write failed: boom"},
		err:    errors.New("remote write failed: boom"),
	}

	rec := serve(t, ctrl, http.MethodPost, "/sync/flush")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "remote write failed: boom", body["error"])
}
