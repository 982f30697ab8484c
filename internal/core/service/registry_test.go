package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fleettrack/internal/core/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e model.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Events() []model.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.Event(nil), p.events...)
}

type staticAssignments struct {
	assignments []model.Assignment
	err         error
}

func (s staticAssignments) FindAssignments(context.Context) ([]model.Assignment, error) {
	return s.assignments, s.err
}

var t0 = time.Date(2024, 1, 15, 9, 30, 0, 0, time.UTC)

func newTestRegistry(t *testing.T) (*Registry, *fakeClock, *recordingPublisher) {
	t.Helper()
	clock := &fakeClock{now: t0}
	pub := &recordingPublisher{}
	return NewRegistry(WithClock(clock.Now), WithPublisher(pub)), clock, pub
}

func samplePosition(deviceID string) *model.PositionReport {
	sats := 8
	return &model.PositionReport{
		DeviceID:   deviceID,
		FixTime:    t0,
		Latitude:   6.3687,
		Longitude:  -10.7928,
		SpeedKph:   28.7,
		CourseDeg:  90,
		GPSValid:   true,
		Satellites: &sats,
	}
}

func TestRegisterAssignmentLifecycle(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t)

	rec, err := r.Register(ctx, "D1", "V1", "Truck 1")
	require.NoError(t, err)
	assert.Equal(t, "V1", rec.VehicleID)
	assert.Equal(t, model.StatusAssigned, rec.Status)
	assert.Equal(t, "Truck 1", rec.DisplayName)

	_, err = r.Register(ctx, "D1", "V2", "")
	assert.True(t, errors.Is(err, ErrAlreadyAssigned), "got %v", err)

	status, err := r.StatusFor(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "D1", status.Device.DeviceID)

	require.NoError(t, r.Unassign(ctx, "V1"))

	got, err := r.Get(ctx, "D1")
	require.NoError(t, err)
	assert.Equal(t, "", got.Device.VehicleID)
	assert.Equal(t, model.StatusUnassigned, got.Device.Status)

	rec, err = r.Register(ctx, "D1", "V2", "")
	require.NoError(t, err)
	assert.Equal(t, "V2", rec.VehicleID)
	assert.Equal(t, "Truck 1", rec.DisplayName)
}

func TestRegisterSameVehicleIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, clock, _ := newTestRegistry(t)

	first, err := r.Register(ctx, "D1", "V1", "")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	second, err := r.Register(ctx, "D1", "V1", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", second.DisplayName)
	assert.Equal(t, first.RegisteredAt, second.RegisteredAt)
}

func TestRegisterRejectsVehicleInUse(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t)

	_, err := r.Register(ctx, "D1", "V1", "")
	require.NoError(t, err)

	_, err = r.Register(ctx, "D2", "V1", "")
	assert.True(t, errors.Is(err, ErrVehicleInUse), "got %v", err)

	_, err = r.Get(ctx, "D2")
	assert.True(t, errors.Is(err, ErrDeviceNotFound), "failed register must not create a record")
}

func TestRegisterValidatesArguments(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	_, err := r.Register(context.Background(), "", "V1", "")
	assert.True(t, errors.Is(err, ErrInvalidArgument))

	_, err = r.Register(context.Background(), "D1", "  ", "")
	assert.True(t, errors.Is(err, ErrInvalidArgument))
}

func TestRegisterPreservesLastSeen(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t)

	require.NoError(t, r.HandleHeartbeat(ctx, "D1", t0))
	rec, err := r.Register(ctx, "D1", "V1", "")
	require.NoError(t, err)
	require.NotNil(t, rec.LastSeenAt)
	assert.True(t, rec.LastSeenAt.Equal(t0))
}

func TestUnassignWithoutHolderIsNoop(t *testing.T) {
	r, _, _ := newTestRegistry(t)
	assert.NoError(t, r.Unassign(context.Background(), "nobody"))
	assert.True(t, errors.Is(r.Unassign(context.Background(), ""), ErrInvalidArgument))
}

func TestHeartbeatDiscoversUnknownDevice(t *testing.T) {
	ctx := context.Background()
	r, _, pub := newTestRegistry(t)

	require.NoError(t, r.HandleHeartbeat(ctx, "868900", t0))
	require.NoError(t, r.HandleHeartbeat(ctx, "868900", t0.Add(time.Minute)))

	events := pub.Events()
	require.Len(t, events, 3)
	assert.Equal(t, model.DeviceDiscovered{DeviceID: "868900", Timestamp: t0}, events[0])
	assert.Equal(t, model.HeartbeatUpdate{DeviceID: "868900", Timestamp: t0}, events[1])
	assert.Equal(t, model.ChannelHeartbeat, events[2].Channel())

	got, err := r.Get(ctx, "868900")
	require.NoError(t, err)
	assert.Equal(t, model.StatusUnassigned, got.Device.Status)
	assert.True(t, got.Online)
}

func TestHeartbeatCarriesVehicle(t *testing.T) {
	ctx := context.Background()
	r, _, pub := newTestRegistry(t)

	_, err := r.Register(ctx, "D1", "V1", "")
	require.NoError(t, err)
	require.NoError(t, r.HandleHeartbeat(ctx, "D1", t0))

	events := pub.Events()
	require.Len(t, events, 1)
	assert.Equal(t, model.HeartbeatUpdate{DeviceID: "D1", VehicleID: "V1", Timestamp: t0}, events[0])
}

func TestHeartbeatNeverRewindsLastSeen(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t)

	require.NoError(t, r.HandleHeartbeat(ctx, "D1", t0))
	require.NoError(t, r.HandleHeartbeat(ctx, "D1", t0.Add(-time.Hour)))

	got, err := r.Get(ctx, "D1")
	require.NoError(t, err)
	assert.True(t, got.Device.LastSeenAt.Equal(t0))
}

func TestIsOnlineWindow(t *testing.T) {
	ctx := context.Background()
	r, clock, _ := newTestRegistry(t)

	assert.False(t, r.IsOnline("D1"), "unknown device")

	require.NoError(t, r.HandleHeartbeat(ctx, "D1", t0))
	assert.True(t, r.IsOnline("D1"))

	clock.Advance(4 * time.Minute)
	assert.True(t, r.IsOnline("D1"))

	clock.Advance(2 * time.Minute)
	assert.False(t, r.IsOnline("D1"))
}

func TestOnlineWindowIsConfigurable(t *testing.T) {
	clock := &fakeClock{now: t0}
	r := NewRegistry(WithClock(clock.Now), WithOnlineWindow(30*time.Second))

	require.NoError(t, r.HandleHeartbeat(context.Background(), "D1", t0))
	clock.Advance(time.Minute)
	assert.False(t, r.IsOnline("D1"))
}

func TestHandlePosition(t *testing.T) {
	ctx := context.Background()
	r, clock, pub := newTestRegistry(t)

	err := r.HandlePosition(ctx, samplePosition("D9"))
	assert.True(t, errors.Is(err, ErrDeviceNotRegistered), "got %v", err)
	assert.Empty(t, pub.Events())

	_, err = r.Register(ctx, "D1", "V1", "")
	require.NoError(t, err)

	clock.Advance(time.Second)
	require.NoError(t, r.HandlePosition(ctx, samplePosition("D1")))

	events := pub.Events()
	require.Len(t, events, 1)
	update, ok := events[0].(model.PositionUpdate)
	require.True(t, ok)
	assert.Equal(t, "V1", update.VehicleID)
	assert.Equal(t, "D1", update.DeviceID)
	assert.Equal(t, 28.7, update.SpeedKph)
	assert.Equal(t, t0, update.Timestamp)

	status, err := r.StatusFor(ctx, "V1")
	require.NoError(t, err)
	require.NotNil(t, status.LatestPosition)
	assert.Equal(t, 6.3687, status.LatestPosition.Latitude)
	assert.True(t, status.Online)
	assert.True(t, status.Device.LastSeenAt.Equal(t0.Add(time.Second)))
}

func TestHandleAlarm(t *testing.T) {
	ctx := context.Background()
	r, _, pub := newTestRegistry(t)

	alarm := &model.AlarmReport{PositionReport: *samplePosition("D1"), AlarmType: "sos"}
	err := r.HandleAlarm(ctx, alarm)
	assert.True(t, errors.Is(err, ErrDeviceNotRegistered))

	_, err = r.Register(ctx, "D1", "V1", "")
	require.NoError(t, err)
	require.NoError(t, r.HandleAlarm(ctx, alarm))

	alarm.AlarmType = "general"
	require.NoError(t, r.HandleAlarm(ctx, alarm))

	events := pub.Events()
	require.Len(t, events, 2)

	sos := events[0].(model.AlarmUpdate)
	assert.Equal(t, "V1", sos.VehicleID)
	assert.Equal(t, "sos", sos.AlarmType)
	assert.Equal(t, model.SeverityCritical, sos.Severity)
	assert.Contains(t, sos.Message, "V1")

	general := events[1].(model.AlarmUpdate)
	assert.Equal(t, model.SeverityHigh, general.Severity)

	status, err := r.StatusFor(ctx, "V1")
	require.NoError(t, err)
	assert.NotNil(t, status.LatestPosition)
}

func TestPublishFailureDoesNotFailHandling(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("sink down")}
	r := NewRegistry(WithPublisher(pub))

	assert.NoError(t, r.HandleHeartbeat(context.Background(), "D1", t0))
	assert.Len(t, pub.Events(), 2)
}

func TestUnregister(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t)

	_, err := r.Register(ctx, "D1", "V1", "")
	require.NoError(t, err)
	require.NoError(t, r.HandlePosition(ctx, samplePosition("D1")))

	require.NoError(t, r.Unregister(ctx, "D1"))
	_, err = r.Get(ctx, "D1")
	assert.True(t, errors.Is(err, ErrDeviceNotFound))
	_, err = r.StatusFor(ctx, "V1")
	assert.True(t, errors.Is(err, ErrVehicleNotFound))

	assert.True(t, errors.Is(r.Unregister(ctx, "D1"), ErrDeviceNotFound))

	// Re-registering starts without the old position.
	_, err = r.Register(ctx, "D1", "V1", "")
	require.NoError(t, err)
	status, err := r.StatusFor(ctx, "V1")
	require.NoError(t, err)
	assert.Nil(t, status.LatestPosition)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t)

	_, err := r.Register(ctx, "D2", "V2", "")
	require.NoError(t, err)
	require.NoError(t, r.HandleHeartbeat(ctx, "D1", t0))

	statuses, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "D1", statuses[0].Device.DeviceID)
	assert.True(t, statuses[0].Online)
	assert.Equal(t, "D2", statuses[1].Device.DeviceID)
	assert.False(t, statuses[1].Online)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	r, _, _ := newTestRegistry(t)

	source := staticAssignments{assignments: []model.Assignment{
		{DeviceID: "D1", VehicleID: "V1", DisplayName: "Truck 1"},
		{DeviceID: "D2", VehicleID: "V1"},
		{DeviceID: "D3", VehicleID: "V3"},
		{DeviceID: "", VehicleID: "V4"},
	}}

	applied, err := r.Seed(ctx, source)
	require.NoError(t, err)
	assert.Equal(t, 2, applied)

	status, err := r.StatusFor(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "D1", status.Device.DeviceID)

	_, err = r.Seed(ctx, staticAssignments{err: errors.New("mongo down")})
	assert.Error(t, err)
}

func TestConcurrentHeartbeatsAndPositions(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry()

	_, err := r.Register(ctx, "D1", "V1", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = r.HandleHeartbeat(ctx, "D1", t0.Add(time.Duration(i)*time.Second))
		}(i)
		go func() {
			defer wg.Done()
			_ = r.HandlePosition(ctx, samplePosition("D1"))
		}()
	}
	wg.Wait()

	got, err := r.Get(ctx, "D1")
	require.NoError(t, err)
	require.NotNil(t, got.Device.LastSeenAt)
	assert.False(t, got.Device.LastSeenAt.Before(t0.Add(49*time.Second)))
}
