package router

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fleettrack/internal/core/model"
	"fleettrack/internal/core/service"
	"fleettrack/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *service.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	now := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	registry := service.NewRegistry(
		service.WithMetrics(m),
		service.WithClock(func() time.Time { return now }),
	)
	srv := httptest.NewServer(NewRouter(Config{Registry: registry, Gatherer: reg}))
	t.Cleanup(srv.Close)
	return srv, registry
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestRegisterAndLookup(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/devices", `{"deviceId":"8800000015","vehicleId":"truck-1","displayName":"Truck 1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var record model.DeviceRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Equal(t, "8800000015", record.DeviceID)
	assert.Equal(t, "truck-1", record.VehicleID)
	assert.Equal(t, model.StatusAssigned, record.Status)

	resp = do(t, http.MethodGet, srv.URL+"/api/devices/8800000015", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var status service.VehicleStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	assert.Equal(t, "truck-1", status.Device.VehicleID)
	assert.False(t, status.Online)

	resp = do(t, http.MethodGet, srv.URL+"/api/vehicles/truck-1/status", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/devices", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []service.VehicleStatus
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 1)
}

func TestRegisterErrors(t *testing.T) {
	srv, registry := newTestServer(t)
	_, err := registry.Register(context.Background(), "dev-1", "truck-1", "")
	require.NoError(t, err)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", `{`, http.StatusBadRequest},
		{"missing vehicle", `{"deviceId":"dev-2"}`, http.StatusBadRequest},
		{"device already assigned", `{"deviceId":"dev-1","vehicleId":"truck-2"}`, http.StatusConflict},
		{"vehicle in use", `{"deviceId":"dev-2","vehicleId":"truck-1"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, srv.URL+"/api/devices", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/api/devices/ghost", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodDelete, srv.URL+"/api/devices/ghost", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, do(t, http.MethodGet, srv.URL+"/api/vehicles/ghost/status", "").StatusCode)
}

func TestUnassignAndUnregister(t *testing.T) {
	srv, registry := newTestServer(t)
	_, err := registry.Register(context.Background(), "dev-1", "truck-1", "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, srv.URL+"/api/vehicles/truck-1/device", "").StatusCode)
	// Nothing holds the vehicle any more; still a success.
	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, srv.URL+"/api/vehicles/truck-1/device", "").StatusCode)

	status, err := registry.Get(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Empty(t, status.Device.VehicleID)

	assert.Equal(t, http.StatusNoContent, do(t, http.MethodDelete, srv.URL+"/api/devices/dev-1", "").StatusCode)
	_, err = registry.Get(context.Background(), "dev-1")
	assert.ErrorIs(t, err, service.ErrDeviceNotFound)
}

func TestHealthMetricsAndCORS(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	preflight, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/devices", nil)
	require.NoError(t, err)
	preflight.Header.Set("Origin", "https://dashboard.example")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	resp, err = http.DefaultClient.Do(preflight)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), http.MethodDelete)

	list, err := http.NewRequest(http.MethodGet, srv.URL+"/api/devices", nil)
	require.NoError(t, err)
	list.Header.Set("Origin", "https://dashboard.example")
	resp, err = http.DefaultClient.Do(list)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = do(t, http.MethodGet, srv.URL+"/ws", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
