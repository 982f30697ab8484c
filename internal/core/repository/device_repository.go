package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleettrack/internal/core/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrNotFound = errors.New("not found")

// DeviceRepository stores registry records. Implementations hand out copies,
// so callers must Save to make a change visible.
type DeviceRepository interface {
	Save(record *model.DeviceRecord) error
	Delete(deviceID string) error
	FindByID(deviceID string) (*model.DeviceRecord, error)
	FindByVehicleID(vehicleID string) (*model.DeviceRecord, error)
	FindAll() ([]*model.DeviceRecord, error)
}

// AssignmentRepository supplies the static device-to-vehicle mapping owned by
// the vehicle management layer.
type AssignmentRepository interface {
	FindAssignments(ctx context.Context) ([]model.Assignment, error)
}

const queryTimeout = 5 * time.Second

// MongoAssignmentRepository reads assignments from the devices collection
// maintained by the CRUD service. It never writes.
type MongoAssignmentRepository struct {
	collection *mongo.Collection
}

func NewMongoAssignmentRepository(db *mongo.Database, collection string) *MongoAssignmentRepository {
	if collection == "" {
		collection = "devices"
	}
	return &MongoAssignmentRepository{
		collection: db.Collection(collection),
	}
}

// FindAssignments returns every document that names both a device and a vehicle.
func (r *MongoAssignmentRepository) FindAssignments(ctx context.Context) ([]model.Assignment, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	filter := bson.M{
		"deviceId":  bson.M{"$nin": bson.A{nil, ""}},
		"vehicleId": bson.M{"$nin": bson.A{nil, ""}},
	}
	opts := options.Find().
		SetProjection(bson.M{"_id": 0, "deviceId": 1, "vehicleId": 1, "displayName": 1}).
		SetSort(bson.M{"deviceId": 1})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find assignments: %w", err)
	}
	defer cursor.Close(ctx)

	var assignments []model.Assignment
	if err = cursor.All(ctx, &assignments); err != nil {
		return nil, fmt.Errorf("decode assignments: %w", err)
	}
	return assignments, nil
}
