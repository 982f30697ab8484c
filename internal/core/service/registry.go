// Package service holds the device registry: the single source of truth for
// which tracker belongs to which vehicle and when it was last heard from.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fleettrack/internal/core/model"
	"fleettrack/internal/core/repository"
	"fleettrack/internal/log"
	"fleettrack/internal/metrics"
)

// DefaultOnlineWindow is how long after its last message a device counts as online.
const DefaultOnlineWindow = 5 * time.Minute

// Publisher receives every enriched event the registry produces.
type Publisher interface {
	Publish(ctx context.Context, event model.Event) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, model.Event) error { return nil }

// VehicleStatus is the live view of one tracker and the vehicle it serves.
type VehicleStatus struct {
	Device         *model.DeviceRecord   `json:"device"`
	LatestPosition *model.PositionReport `json:"latestPosition"`
	Online         bool                  `json:"online"`
}

// Registry correlates device ids seen on the wire with vehicles. All methods
// are safe for concurrent use.
type Registry struct {
	mu sync.RWMutex

	devices   repository.DeviceRepository
	positions repository.PositionCache
	publisher Publisher
	metrics   *metrics.Metrics
	logger    log.Logger

	now          func() time.Time
	onlineWindow time.Duration
}

type Option func(*Registry)

func WithDeviceRepository(repo repository.DeviceRepository) Option {
	return func(r *Registry) { r.devices = repo }
}

func WithPositionCache(cache repository.PositionCache) Option {
	return func(r *Registry) { r.positions = cache }
}

func WithPublisher(p Publisher) Option {
	return func(r *Registry) { r.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithLogger(l log.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock replaces time.Now for online checks and record timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithOnlineWindow(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.onlineWindow = d
		}
	}
}

func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		devices:      repository.NewInMemoryDeviceRepository(),
		positions:    repository.NewInMemoryPositionCache(),
		publisher:    nopPublisher{},
		logger:       log.NewNopLogger(),
		now:          time.Now,
		onlineWindow: DefaultOnlineWindow,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register assigns vehicleID to deviceID, creating the record if needed. A
// device keeps its vehicle until Unassign; a vehicle carries at most one device.
func (r *Registry) Register(ctx context.Context, deviceID, vehicleID, displayName string) (*model.DeviceRecord, error) {
	deviceID = strings.TrimSpace(deviceID)
	vehicleID = strings.TrimSpace(vehicleID)
	if deviceID == "" || vehicleID == "" {
		return nil, fmt.Errorf("%w: device id and vehicle id are required", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.devices.FindByID(deviceID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		record = model.NewDeviceRecord(deviceID, r.now().UTC())
	}

	if err := newAssignmentMachine(record).assign(ctx, vehicleID, strings.TrimSpace(displayName)); err != nil {
		return nil, err
	}

	holder, err := r.devices.FindByVehicleID(vehicleID)
	if err != nil {
		return nil, err
	}
	if holder != nil && holder.DeviceID != deviceID {
		return nil, fmt.Errorf("%w: %s is tracked by %s", ErrVehicleInUse, vehicleID, holder.DeviceID)
	}

	if err := r.devices.Save(record); err != nil {
		return nil, err
	}

	r.logger.Info("Device registered", "device", deviceID, "vehicle", vehicleID)
	return record, nil
}

// Unassign releases whichever device holds vehicleID. It is a no-op when no
// device does.
func (r *Registry) Unassign(ctx context.Context, vehicleID string) error {
	vehicleID = strings.TrimSpace(vehicleID)
	if vehicleID == "" {
		return fmt.Errorf("%w: vehicle id is required", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.devices.FindByVehicleID(vehicleID)
	if err != nil || record == nil {
		return err
	}

	if err := newAssignmentMachine(record).unassign(ctx); err != nil {
		return err
	}
	if err := r.devices.Save(record); err != nil {
		return err
	}

	r.logger.Info("Device unassigned", "device", record.DeviceID, "vehicle", vehicleID)
	return nil
}

// Unregister forgets a device and its cached position.
func (r *Registry) Unregister(ctx context.Context, deviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.devices.Delete(deviceID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		return err
	}
	if err := r.positions.Delete(ctx, deviceID); err != nil {
		r.logger.Error(err, "Failed to drop cached position", "device", deviceID)
	}

	r.logger.Info("Device unregistered", "device", deviceID)
	return nil
}

// Get returns the live status of one device.
func (r *Registry) Get(ctx context.Context, deviceID string) (*VehicleStatus, error) {
	r.mu.RLock()
	record, err := r.devices.FindByID(deviceID)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
	}
	return r.statusOf(ctx, record)
}

// List returns the live status of every known device, ordered by device id.
func (r *Registry) List(ctx context.Context) ([]*VehicleStatus, error) {
	r.mu.RLock()
	records, err := r.devices.FindAll()
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	statuses := make([]*VehicleStatus, 0, len(records))
	for _, record := range records {
		status, err := r.statusOf(ctx, record)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// StatusFor returns the status of the device assigned to vehicleID.
func (r *Registry) StatusFor(ctx context.Context, vehicleID string) (*VehicleStatus, error) {
	r.mu.RLock()
	record, err := r.devices.FindByVehicleID(vehicleID)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrVehicleNotFound, vehicleID)
	}
	return r.statusOf(ctx, record)
}

func (r *Registry) statusOf(ctx context.Context, record *model.DeviceRecord) (*VehicleStatus, error) {
	latest, err := r.positions.Latest(ctx, record.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("latest position for %s: %w", record.DeviceID, err)
	}
	return &VehicleStatus{
		Device:         record,
		LatestPosition: latest,
		Online:         record.OnlineAt(r.now(), r.onlineWindow),
	}, nil
}

// IsOnline reports whether deviceID exists and was heard from within the
// online window.
func (r *Registry) IsOnline(deviceID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, err := r.devices.FindByID(deviceID)
	if err != nil || record == nil {
		return false
	}
	return record.OnlineAt(r.now(), r.onlineWindow)
}

// HandleHeartbeat marks deviceID as seen at at. Unknown devices are recorded as
// unassigned and announced once on the discovery channel.
func (r *Registry) HandleHeartbeat(ctx context.Context, deviceID string, at time.Time) error {
	r.mu.Lock()
	record, err := r.devices.FindByID(deviceID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	discovered := record == nil
	if discovered {
		record = model.NewDeviceRecord(deviceID, r.now().UTC())
	}
	record.Touch(at)
	err = r.devices.Save(record)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	if discovered {
		r.logger.Info("Discovered unregistered device", "device", deviceID)
		r.publish(ctx, model.DeviceDiscovered{DeviceID: deviceID, Timestamp: at})
	}

	r.publish(ctx, model.HeartbeatUpdate{
		DeviceID:  deviceID,
		VehicleID: record.VehicleID,
		Timestamp: at,
	})
	return nil
}

// HandlePosition records the latest position of a registered device and
// publishes it.
func (r *Registry) HandlePosition(ctx context.Context, report *model.PositionReport) error {
	record, err := r.touch(report.DeviceID)
	if err != nil {
		return err
	}

	if err := r.positions.Put(ctx, report); err != nil {
		r.logger.Error(err, "Failed to cache position", "device", report.DeviceID)
	}

	r.publish(ctx, model.NewPositionUpdate(record.VehicleID, report))
	return nil
}

// HandleAlarm records the alarm position and publishes an alarm event.
func (r *Registry) HandleAlarm(ctx context.Context, alarm *model.AlarmReport) error {
	record, err := r.touch(alarm.DeviceID)
	if err != nil {
		return err
	}

	if err := r.positions.Put(ctx, &alarm.PositionReport); err != nil {
		r.logger.Error(err, "Failed to cache alarm position", "device", alarm.DeviceID)
	}

	r.logger.Warn("Alarm received", "device", alarm.DeviceID, "vehicle", record.VehicleID, "type", alarm.AlarmType)
	r.publish(ctx, model.AlarmUpdate{
		VehicleID: record.VehicleID,
		DeviceID:  alarm.DeviceID,
		AlarmType: alarm.AlarmType,
		Latitude:  alarm.Latitude,
		Longitude: alarm.Longitude,
		Timestamp: alarm.FixTime,
		Message:   alarmMessage(record, alarm.AlarmType),
		Severity:  alarmSeverity(alarm.AlarmType),
	})
	return nil
}

// touch marks a registered device as seen now and returns a copy of its record.
func (r *Registry) touch(deviceID string) (*model.DeviceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, err := r.devices.FindByID(deviceID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrDeviceNotRegistered, deviceID)
	}

	record.Touch(r.now().UTC())
	if err := r.devices.Save(record); err != nil {
		return nil, err
	}
	return record, nil
}

// Seed registers every assignment from source. Conflicting entries are logged
// and skipped; the number of applied assignments is returned.
func (r *Registry) Seed(ctx context.Context, source repository.AssignmentRepository) (int, error) {
	assignments, err := source.FindAssignments(ctx)
	if err != nil {
		return 0, fmt.Errorf("load assignments: %w", err)
	}

	applied := 0
	for _, a := range assignments {
		if _, err := r.Register(ctx, a.DeviceID, a.VehicleID, a.DisplayName); err != nil {
			r.logger.Warn("Skipping assignment", "device", a.DeviceID, "vehicle", a.VehicleID, "error", err)
			continue
		}
		applied++
	}

	r.logger.Info("Seeded device assignments", "applied", applied, "total", len(assignments))
	return applied, nil
}

func (r *Registry) publish(ctx context.Context, event model.Event) {
	r.metrics.EventPublished(string(event.Channel()))
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Error(err, "Failed to publish event", "channel", event.Channel(), "device", event.Key())
	}
}

func alarmSeverity(alarmType string) string {
	if alarmType == "sos" {
		return model.SeverityCritical
	}
	return model.SeverityHigh
}

func alarmMessage(record *model.DeviceRecord, alarmType string) string {
	if record.VehicleID == "" {
		return fmt.Sprintf("%s alarm from device %s", alarmType, record.DeviceID)
	}
	return fmt.Sprintf("%s alarm from vehicle %s (device %s)", alarmType, record.VehicleID, record.DeviceID)
}
