package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"fleettrack/internal/core/model"
	"fleettrack/internal/core/service"
	"fleettrack/internal/log"

	"github.com/gorilla/mux"
)

// DeviceRegistry is the part of the registry the HTTP surface drives.
type DeviceRegistry interface {
	Register(ctx context.Context, deviceID, vehicleID, displayName string) (*model.DeviceRecord, error)
	Unassign(ctx context.Context, vehicleID string) error
	Unregister(ctx context.Context, deviceID string) error
	Get(ctx context.Context, deviceID string) (*service.VehicleStatus, error)
	List(ctx context.Context) ([]*service.VehicleStatus, error)
	StatusFor(ctx context.Context, vehicleID string) (*service.VehicleStatus, error)
}

type DeviceHandler struct {
	registry DeviceRegistry
	logger   log.Logger
}

func NewDeviceHandler(registry DeviceRegistry, logger log.Logger) *DeviceHandler {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &DeviceHandler{
		registry: registry,
		logger:   logger,
	}
}

type registerDeviceRequest struct {
	DeviceID    string `json:"deviceId"`
	VehicleID   string `json:"vehicleId"`
	DisplayName string `json:"displayName,omitempty"`
}

func (h *DeviceHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	record, err := h.registry.Register(r.Context(), req.DeviceID, req.VehicleID, req.DisplayName)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.registry.List(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if statuses == nil {
		statuses = []*service.VehicleStatus{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	status, err := h.registry.Get(r.Context(), mux.Vars(r)["deviceId"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *DeviceHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Unregister(r.Context(), mux.Vars(r)["deviceId"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unassign succeeds even when no device held the vehicle.
func (h *DeviceHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Unassign(r.Context(), mux.Vars(r)["vehicleId"]); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DeviceHandler) VehicleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.registry.StatusFor(r.Context(), mux.Vars(r)["vehicleId"])
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *DeviceHandler) fail(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		h.logger.Error(err, "Device request failed")
		writeError(w, code, "Internal server error")
		return
	}
	writeError(w, code, err.Error())
}

func statusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadyAssigned), errors.Is(err, service.ErrVehicleInUse):
		return http.StatusConflict
	case errors.Is(err, service.ErrDeviceNotFound),
		errors.Is(err, service.ErrDeviceNotRegistered),
		errors.Is(err, service.ErrVehicleNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
