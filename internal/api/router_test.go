package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/featureops/fsmon-backend-go/internal/api/middleware"
	"github.com/featureops/fsmon-backend-go/internal/config"
	"github.com/featureops/fsmon-backend-go/internal/core/aggregator"
	"github.com/featureops/fsmon-backend-go/internal/core/alerts"
	"github.com/featureops/fsmon-backend-go/internal/core/ingest"
	"github.com/featureops/fsmon-backend-go/internal/core/metrics"
	"github.com/featureops/fsmon-backend-go/internal/database"
	"github.com/featureops/fsmon-backend-go/internal/websocket"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile("../../migrations/000001_init.up.sql")
	require.NoError(t, err)
	_, err = db.Exec(string(schema))
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Server.Mode = "production"
	cfg.Monitoring.ClockSkewTolerance = 5 * time.Minute
	cfg.Monitoring.DefaultQueryWindow = 24 * time.Hour
	cfg.Monitoring.QueryTimeout = 5 * time.Second

	repos := database.NewRepositories(db, log)
	wsHub := websocket.NewHub(log)

	metricSvc := metrics.NewService(repos.Metric, cfg.Monitoring, log)
	alertSvc := alerts.NewService(repos.Alert, repos.Rule, log)
	aggSvc := aggregator.NewService(repos.Metric, repos.Alert, repos.Rule, cfg.Monitoring, log)
	gateway := ingest.NewGateway(metricSvc, alertSvc, "", log)

	return NewRouter(cfg, log, wsHub, gateway, metricSvc, alertSvc, aggSvc)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["success"])
}

func TestObservationRoundTrip(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/observations", map[string]interface{}{
		"subject":      "user_age",
		"subject_kind": "feature",
		"metric_name":  "null_rate",
		"value":        0.02,
		"labels":       map[string]string{"pipeline": "batch"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/api/v1/observations?metric_name=null_rate", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	data, ok := body["data"].([]interface{})
	require.True(t, ok)
	require.Len(t, data, 1)

	meta, ok := body["meta"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), meta["total"])
}

func TestObservationValidationNamesField(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/observations", map[string]interface{}{
		"subject":      "user_age",
		"subject_kind": "feature",
		"metric_name":  "",
		"value":        0.02,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "metric_name", body["field"])
	assert.Equal(t, "validation", body["kind"])
}

func TestObservationRejectsFutureTimestamp(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/observations", map[string]interface{}{
		"subject":      "user_age",
		"subject_kind": "feature",
		"metric_name":  "null_rate",
		"value":        0.02,
		"timestamp":    time.Now().Add(time.Hour).Format(time.RFC3339),
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "timestamp", body["field"])
}

func TestAlertLifecycleOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/alerts", map[string]interface{}{
		"title":    "disk full",
		"severity": "high",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	created := decodeBody(t, w)
	alert, ok := created["data"].(map[string]interface{})
	require.True(t, ok)
	alertID, _ := alert["id"].(string)
	require.NotEmpty(t, alertID)

	w = doJSON(t, router, http.MethodPut, "/api/v1/alerts/"+alertID+"/status", map[string]interface{}{
		"status": "resolved",
		"actor":  "oncall",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Resolved is terminal.
	w = doJSON(t, router, http.MethodPut, "/api/v1/alerts/"+alertID+"/status", map[string]interface{}{
		"status": "acknowledged",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "invalid_transition", body["kind"])
}

func TestUpdateStatusUnknownAlert(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPut, "/api/v1/alerts/nope/status", map[string]interface{}{
		"status": "resolved",
	})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAlertRuleValidationOverHTTP(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/alert-rules", map[string]interface{}{
		"name":     "high null rate",
		"severity": "high",
		"condition": map[string]interface{}{
			"metric_name":      "null_rate",
			"subject_selector": "*",
			"comparator":       "~",
			"threshold":        0.1,
			"window":           "15m",
			"aggregation":      "avg",
		},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, "condition.comparator", body["field"])
}

func TestDashboardCountsMatchAlertList(t *testing.T) {
	router := newTestRouter(t)

	for i := 0; i < 3; i++ {
		w := doJSON(t, router, http.MethodPost, "/api/v1/alerts", map[string]interface{}{
			"title":    fmt.Sprintf("incident %d", i),
			"severity": "medium",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, router, http.MethodGet, "/api/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	dashboard := decodeBody(t, w)["data"].(map[string]interface{})

	w = doJSON(t, router, http.MethodGet, "/api/v1/alerts?status=active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	meta := decodeBody(t, w)["meta"].(map[string]interface{})

	assert.Equal(t, meta["total"], dashboard["active_alert_count"])
	assert.Equal(t, "warning", dashboard["system_health"])
}

func TestTimeSeriesEndpoint(t *testing.T) {
	router := newTestRouter(t)

	now := time.Now().UTC().Truncate(time.Hour)
	for _, offset := range []time.Duration{-3 * time.Hour, -2 * time.Hour} {
		w := doJSON(t, router, http.MethodPost, "/api/v1/observations", map[string]interface{}{
			"subject":      "inference-api",
			"subject_kind": "service",
			"metric_name":  "latency_ms",
			"value":        100.0,
			"timestamp":    now.Add(offset).Format(time.RFC3339),
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	path := fmt.Sprintf("/api/v1/timeseries/latency_ms?start=%s&end=%s&interval=1h",
		now.Add(-4*time.Hour).Format(time.RFC3339), now.Format(time.RFC3339))
	w := doJSON(t, router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	data := decodeBody(t, w)["data"].(map[string]interface{})
	buckets, ok := data["buckets"].([]interface{})
	require.True(t, ok)
	assert.Len(t, buckets, 2)
	assert.Equal(t, false, data["partial"])
}

func TestCORSHonorsConfiguredOrigins(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.CORSMiddleware([]string{"http://dash.internal"}))
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://dash.internal")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://dash.internal", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTimeSeriesBadInterval(t *testing.T) {
	router := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/api/v1/timeseries/latency_ms?interval=soon", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "interval", decodeBody(t, w)["field"])
}
