package repository

import (
	"fmt"
	"sort"
	"sync"

	"fleettrack/internal/core/model"
)

type inMemoryDeviceRepository struct {
	devices map[string]*model.DeviceRecord
	mutex   sync.RWMutex
}

func NewInMemoryDeviceRepository() DeviceRepository {
	return &inMemoryDeviceRepository{
		devices: make(map[string]*model.DeviceRecord),
	}
}

func (r *inMemoryDeviceRepository) Save(record *model.DeviceRecord) error {
	if record == nil || record.DeviceID == "" {
		return fmt.Errorf("save device: empty device id")
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.devices[record.DeviceID] = record.Clone()
	return nil
}

func (r *inMemoryDeviceRepository) Delete(deviceID string) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if _, exists := r.devices[deviceID]; !exists {
		return fmt.Errorf("device %s: %w", deviceID, ErrNotFound)
	}

	delete(r.devices, deviceID)
	return nil
}

func (r *inMemoryDeviceRepository) FindByID(deviceID string) (*model.DeviceRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if record, exists := r.devices[deviceID]; exists {
		return record.Clone(), nil
	}
	return nil, nil
}

func (r *inMemoryDeviceRepository) FindByVehicleID(vehicleID string) (*model.DeviceRecord, error) {
	if vehicleID == "" {
		return nil, nil
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	for _, record := range r.devices {
		if record.VehicleID == vehicleID {
			return record.Clone(), nil
		}
	}
	return nil, nil
}

// FindAll returns every record ordered by device id.
func (r *inMemoryDeviceRepository) FindAll() ([]*model.DeviceRecord, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	records := make([]*model.DeviceRecord, 0, len(r.devices))
	for _, record := range r.devices {
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].DeviceID < records[j].DeviceID
	})
	return records, nil
}
