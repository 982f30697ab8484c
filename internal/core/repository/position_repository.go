package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"fleettrack/internal/core/model"
)

// PositionCache keeps the most recent report per device. It is a cache, not a
// track: every Put replaces the previous report.
type PositionCache interface {
	Put(ctx context.Context, report *model.PositionReport) error
	Latest(ctx context.Context, deviceID string) (*model.PositionReport, error)
	Delete(ctx context.Context, deviceID string) error
}

const (
	mirrorQueueSize = 1024
	mirrorTimeout   = 2 * time.Second
)

// ErrMirrorQueueFull is reported to onError when a mirror write is dropped
// because the mirror is behind.
var ErrMirrorQueueFull = errors.New("position mirror queue full")

type mirrorOp struct {
	name     string
	report   *model.PositionReport
	deviceID string
}

// MirroredPositionCache serves reads from a primary cache and copies writes
// to a mirror in the background, in order, on one goroutine.
type MirroredPositionCache struct {
	primary PositionCache
	mirror  PositionCache
	onError func(op string, err error)

	queue chan mirrorOp
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

var _ PositionCache = (*MirroredPositionCache)(nil)

// NewMirroredPositionCache starts the mirror writer. Mirror failures and
// dropped writes go to onError and are never returned. Close stops it.
func NewMirroredPositionCache(primary, mirror PositionCache, onError func(op string, err error)) *MirroredPositionCache {
	return newMirroredPositionCache(primary, mirror, onError, mirrorQueueSize)
}

func newMirroredPositionCache(primary, mirror PositionCache, onError func(op string, err error), queueSize int) *MirroredPositionCache {
	if onError == nil {
		onError = func(string, error) {}
	}
	c := &MirroredPositionCache{
		primary: primary,
		mirror:  mirror,
		onError: onError,
		queue:   make(chan mirrorOp, queueSize),
		done:    make(chan struct{}),
	}
	go c.run()
	return c
}

func (c *MirroredPositionCache) Put(ctx context.Context, report *model.PositionReport) error {
	if err := c.primary.Put(ctx, report); err != nil {
		return err
	}
	c.enqueue(mirrorOp{name: "put", report: report, deviceID: report.DeviceID})
	return nil
}

func (c *MirroredPositionCache) Latest(ctx context.Context, deviceID string) (*model.PositionReport, error) {
	return c.primary.Latest(ctx, deviceID)
}

func (c *MirroredPositionCache) Delete(ctx context.Context, deviceID string) error {
	if err := c.primary.Delete(ctx, deviceID); err != nil {
		return err
	}
	c.enqueue(mirrorOp{name: "delete", deviceID: deviceID})
	return nil
}

// Close flushes queued mirror writes and stops the writer. Writes after Close
// reach only the primary.
func (c *MirroredPositionCache) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		close(c.queue)
	}
	c.mu.Unlock()
	<-c.done
}

func (c *MirroredPositionCache) enqueue(op mirrorOp) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.queue <- op:
	default:
		c.onError(op.name, ErrMirrorQueueFull)
	}
}

func (c *MirroredPositionCache) run() {
	defer close(c.done)
	for op := range c.queue {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		var err error
		if op.report != nil {
			err = c.mirror.Put(ctx, op.report)
		} else {
			err = c.mirror.Delete(ctx, op.deviceID)
		}
		cancel()
		if err != nil {
			c.onError(op.name, err)
		}
	}
}
