package router

import (
	"net/http"

	"fleettrack/internal/api/handler"
	"fleettrack/internal/api/middleware"
	"fleettrack/internal/log"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Registry handler.DeviceRegistry
	// Gatherer backs /metrics; nil leaves the route out.
	Gatherer prometheus.Gatherer
	// WebSocket serves /ws; nil leaves the route out.
	WebSocket http.Handler
	Logger    log.Logger
}

func NewRouter(cfg Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNopLogger()
	}

	deviceHandler := handler.NewDeviceHandler(cfg.Registry, logger)

	r := mux.NewRouter()
	r.Use(middleware.Logging(logger))

	r.HandleFunc("/health", handler.Health).Methods(http.MethodGet)

	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if cfg.WebSocket != nil {
		r.Handle("/ws", cfg.WebSocket).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/devices", deviceHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/devices", deviceHandler.List).Methods(http.MethodGet)
	api.HandleFunc("/devices/{deviceId}", deviceHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/devices/{deviceId}", deviceHandler.Unregister).Methods(http.MethodDelete)
	api.HandleFunc("/vehicles/{vehicleId}/device", deviceHandler.Unassign).Methods(http.MethodDelete)
	api.HandleFunc("/vehicles/{vehicleId}/status", deviceHandler.VehicleStatus).Methods(http.MethodGet)

	// CORS wraps the router so preflight requests never reach method matching.
	return middleware.CORS()(r)
}
