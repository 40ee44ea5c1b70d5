package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	v1 "github.com/rohanmalviya/simian/internal/api/v1"
	"github.com/rohanmalviya/simian/internal/core/storage"
	"github.com/rohanmalviya/simian/internal/core/storage/memory"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*gin.Engine, *memory.MSULog, *memory.InstallLog) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	msuLog := memory.NewMSULog()
	installLog := memory.NewInstallLog()
	svc := NewService(msuLog, installLog)

	r := gin.New()
	svc.RegisterRoutes(r)
	return r, msuLog, installLog
}

func TestIngestMSUHandler_Success(t *testing.T) {
	r, msuLog, _ := newTestRouter(t)

	evt := v1.MSUEvent{
		UUID:  "uuid-001",
		User:  "alice",
		Event: "launched",
		Mtime: time.Now().UTC(),
	}
	body, _ := json.Marshal(evt)

	req := httptest.NewRequest(http.MethodPost, "/v1/events/msu", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusAccepted, resp.Code)

	page, err := msuLog.FetchPage(context.Background(), storage.CursorStart, 10)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "alice", page[0].Event.User)
	require.Equal(t, "launched", page[0].Event.Event)
}

func TestIngestMSUHandler_MissingUser(t *testing.T) {
	r, msuLog, _ := newTestRouter(t)

	body := []byte(`{"uuid": "uuid-001", "event": "launched", "mtime": "2026-08-01T12:00:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/events/msu", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)

	page, err := msuLog.FetchPage(context.Background(), storage.CursorStart, 10)
	require.NoError(t, err)
	require.Empty(t, page)
}

func TestIngestMSUHandler_InvalidJSON(t *testing.T) {
	r, _, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/events/msu", bytes.NewReader([]byte(`{not json`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestIngestInstallHandler_SetsServerDatetime(t *testing.T) {
	r, _, installLog := newTestRouter(t)

	duration := int64(42)
	evt := v1.InstallEvent{
		Package:         "Firefox-130.0",
		Success:         true,
		DurationSeconds: &duration,
		Mtime:           time.Now().UTC(),
		// ServerDatetime deliberately unset; the handler stamps it.
	}
	body, _ := json.Marshal(evt)

	before := time.Now().UTC()
	req := httptest.NewRequest(http.MethodPost, "/v1/events/install", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusAccepted, resp.Code)

	stored, err := installLog.FetchSince(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "Firefox-130.0", stored[0].Package)
	require.False(t, stored[0].ServerDatetime.Before(before))
}

func TestIngestInstallHandler_NegativeDurationRejected(t *testing.T) {
	r, _, installLog := newTestRouter(t)

	body := []byte(`{"package": "Firefox-130.0", "success": true, "duration_seconds": -5, "mtime": "2026-08-01T12:00:00Z"}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/events/install", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)

	stored, err := installLog.FetchSince(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Empty(t, stored)
}
