package config

import (
	"context"
	"fmt"
	"time"

	"fleettrack/internal/log"

	"github.com/spf13/pflag"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoOptions points at the CRUD layer's database, the source of static
// device assignments. An empty URI disables seeding.
type MongoOptions struct {
	URI        string `json:"uri" mapstructure:"uri"`
	Database   string `json:"database" mapstructure:"database"`
	Collection string `json:"collection" mapstructure:"collection"`
}

func NewMongoOptions() *MongoOptions {
	return &MongoOptions{
		Database:   "tracking",
		Collection: "devices",
	}
}

func (o *MongoOptions) Validate() []error {
	if o.URI != "" && o.Database == "" {
		return []error{fmt.Errorf("mongodb.database is required when mongodb.uri is set")}
	}
	return nil
}

func (o *MongoOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.URI, "mongodb.uri", o.URI, "MongoDB URI of the vehicle database (empty disables assignment seeding).")
	fs.StringVar(&o.Database, "mongodb.database", o.Database, "MongoDB database name.")
	fs.StringVar(&o.Collection, "mongodb.collection", o.Collection, "Collection holding device assignments.")
}

const mongoConnectTimeout = 10 * time.Second

// mongoClientOptions routes the driver's own log output (server selection,
// connection pool, topology changes) through logger.
func mongoClientOptions(o *MongoOptions, logger log.Logger) *options.ClientOptions {
	sink := logger.Logr().GetSink()
	return options.Client().
		ApplyURI(o.URI).
		SetLoggerOptions(options.Logger().
			SetSink(sink).
			SetComponentLevel(options.LogComponentTopology, options.LogLevelInfo).
			SetComponentLevel(options.LogComponentConnection, options.LogLevelInfo).
			SetComponentLevel(options.LogComponentServerSelection, options.LogLevelInfo))
}

// ConnectMongoDB connects and pings. The caller disconnects the returned client.
func ConnectMongoDB(ctx context.Context, o *MongoOptions, logger log.Logger) (*mongo.Client, *mongo.Database, error) {
	if o.URI == "" {
		return nil, nil, fmt.Errorf("MongoDB URI not provided")
	}

	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, mongoClientOptions(o, logger))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	logger.Info("Connected to MongoDB", "database", o.Database)
	return client, client.Database(o.Database), nil
}
