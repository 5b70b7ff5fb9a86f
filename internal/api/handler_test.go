package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"factory-status-backend/config"
	"factory-status-backend/internal/ingest"
	"factory-status-backend/internal/model"
	"factory-status-backend/internal/parse"
	"factory-status-backend/internal/store"
)

func setupRouter(t *testing.T) (*gin.Engine, store.Store) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		sqlDB.Close()
	})
	require.NoError(t, db.AutoMigrate(&model.Machine{}, &model.StatusRecord{}, &model.LiveState{}, &model.PushSubscription{}))

	st := store.NewGormStore(db)
	norm := parse.NewNormalizer(8)
	ing := ingest.NewService(st, norm, nil, nil, 50)

	cfg := &config.ServerConfig{RateLimitPerSec: 1000, RateLimitBurst: 1000, CacheTTLSeconds: 1}
	return NewRouter(cfg, st, ing, norm, nil), st
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cache-Control", "no-cache")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPostReports_SingleAndArray(t *testing.T) {
	router, _ := setupRouter(t)

	// A single object body is accepted.
	w := doJSON(t, router, "POST", "/api/reports", map[string]any{
		"timestamp": "2026-03-10T09:00:00+08:00",
		"machine":   "M1",
		"status":    "RUNNING",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result map[string]int
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result["saved"])

	// An array body is accepted, and a numeric epoch timestamp works.
	w = doJSON(t, router, "POST", "/api/reports", []map[string]any{
		{"timestamp": "2026-03-10T09:01:00+08:00", "machine": "M1", "status": "RUNNING"},
		{"timestamp": 1774000000, "machine": "M2", "status": "OFF"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 2, result["saved"])

	w = doJSON(t, router, "POST", "/api/reports", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMachineEndpoints(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "POST", "/api/reports", []map[string]any{
		{"timestamp": "2026-03-10T09:00:00+08:00", "machine": "M1", "status": "RUNNING"},
		{"timestamp": "2026-03-10T09:00:00+08:00", "machine": "M2", "status": "DOWNTIME"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	// List is ordered by machine identifier.
	w = doJSON(t, router, "GET", "/api/machines", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "M1", list[0]["machine"])
	assert.Equal(t, "M2", list[1]["machine"])
	// Reports are months old relative to the test clock, so offline.
	assert.Equal(t, "offline", list[0]["connectivity"])

	w = doJSON(t, router, "GET", "/api/machines/M2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var one map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	assert.Equal(t, "DOWNTIME", one["status"])
	assert.Equal(t, true, one["downtime"])

	w = doJSON(t, router, "GET", "/api/machines/never-seen", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Explicit reset removes the snapshot; a second reset is a 404.
	w = doJSON(t, router, "DELETE", "/api/machines/M1/live", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, router, "GET", "/api/machines/M1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = doJSON(t, router, "DELETE", "/api/machines/M1/live", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetMachineHistory(t *testing.T) {
	router, _ := setupRouter(t)

	reports := make([]map[string]any, 0, 3)
	for _, hhmmss := range []string{"09:00:00", "09:05:00", "09:10:00"} {
		reports = append(reports, map[string]any{
			"timestamp": "2026-03-10T" + hhmmss + "+08:00",
			"machine":   "M1",
			"status":    "RUNNING",
		})
	}
	w := doJSON(t, router, "POST", "/api/reports", reports)
	require.Equal(t, http.StatusOK, w.Code)

	// Explicit range, newest-first by default.
	w = doJSON(t, router, "GET", "/api/machines/M1/history?from=2026-03-10T00:00:00Z&to=2026-03-11T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []model.StatusRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 3)
	assert.True(t, records[0].RecordedAt.After(records[2].RecordedAt))

	// Default range is the last 24 hours; these old records fall outside it.
	w = doJSON(t, router, "GET", "/api/machines/M1/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	assert.Empty(t, records)

	w = doJSON(t, router, "GET", "/api/machines/M1/history?from=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetMachineHistory_CSVExport(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "POST", "/api/reports", []map[string]any{
		{"timestamp": "2026-03-10T09:05:00+08:00", "machine": "M1", "status": "OFF"},
		{"timestamp": "2026-03-10T09:00:00+08:00", "machine": "M1", "status": "RUNNING", "durationSeconds": 60},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/api/machines/M1/history?from=2026-03-10T00:00:00Z&to=2026-03-11T00:00:00Z&format=csv", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "timestamp,machine,status,power,downtime,shift,durationSeconds", lines[0])
	// Export order is ascending: the RUNNING report comes first.
	assert.Equal(t, "2026-03-10 09:00:00,M1,RUNNING,true,false,Morning,60", lines[1])
	assert.Equal(t, "2026-03-10 09:05:00,M1,OFF,false,false,Morning,0", lines[2])
}

func TestGetStats(t *testing.T) {
	router, _ := setupRouter(t)

	w := doJSON(t, router, "POST", "/api/reports", []map[string]any{
		{"timestamp": "2026-03-10T09:00:00+08:00", "machine": "M1", "status": "RUNNING"},
		{"timestamp": "2026-03-10T09:00:00+08:00", "machine": "M2", "status": "RUNNING"},
		{"timestamp": "2026-03-10T09:00:00+08:00", "machine": "M3", "status": "DOWNTIME"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, "GET", "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats store.Stats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.TotalMachines)
	assert.Equal(t, 2, stats.ByStatus[model.StatusRunning])
	assert.Equal(t, 1, stats.ByStatus[model.StatusDowntime])
	assert.Equal(t, 3, stats.Connectivity[model.ConnectivityOffline])
}

func TestSubscriptionLifecycle(t *testing.T) {
	router, _ := setupRouter(t)

	// Machines must exist before they can be subscribed to.
	w := doJSON(t, router, "POST", "/api/reports", []map[string]any{
		{"timestamp": "2026-03-10T09:00:00+08:00", "machine": "M1", "status": "RUNNING"},
		{"timestamp": "2026-03-10T09:00:00+08:00", "machine": "M2", "status": "RUNNING"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	put := map[string]any{
		"endpoint":            "https://example.com/push",
		"p256dh":              "key",
		"auth":                "auth",
		"subscribed_machines": []string{"M1", "M2"},
	}
	w = doJSON(t, router, "PUT", "/api/subscriptions", put)
	assert.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, router, "GET", "/api/subscriptions?endpoint=https://example.com/push", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.ElementsMatch(t, []string{"M1", "M2"}, got["subscribed_machines"])

	// Replacing with a narrower set works.
	put["subscribed_machines"] = []string{"M2"}
	w = doJSON(t, router, "PUT", "/api/subscriptions", put)
	assert.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, router, "GET", "/api/subscriptions?endpoint=https://example.com/push", nil)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []string{"M2"}, got["subscribed_machines"])

	w = doJSON(t, router, "DELETE", "/api/subscriptions", map[string]any{"endpoint": "https://example.com/push"})
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, router, "GET", "/api/subscriptions?endpoint=https://example.com/push", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, "PUT", "/api/subscriptions", map[string]any{"endpoint": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetVAPIDPublicKey_Unconfigured(t *testing.T) {
	router, _ := setupRouter(t)
	w := doJSON(t, router, "GET", "/api/vapid_public_key", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
