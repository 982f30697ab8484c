package repository

import (
	"context"
	"sync"

	"fleettrack/internal/core/model"
)

type inMemoryPositionCache struct {
	positions map[string]*model.PositionReport
	mutex     sync.RWMutex
}

func NewInMemoryPositionCache() PositionCache {
	return &inMemoryPositionCache{
		positions: make(map[string]*model.PositionReport),
	}
}

func (r *inMemoryPositionCache) Put(_ context.Context, report *model.PositionReport) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.positions[report.DeviceID] = report.Clone()
	return nil
}

// Latest returns nil, nil when the device has not reported a position yet.
func (r *inMemoryPositionCache) Latest(_ context.Context, deviceID string) (*model.PositionReport, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if report, exists := r.positions[deviceID]; exists {
		return report.Clone(), nil
	}
	return nil, nil
}

func (r *inMemoryPositionCache) Delete(_ context.Context, deviceID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	delete(r.positions, deviceID)
	return nil
}
