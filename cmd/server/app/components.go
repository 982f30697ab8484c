package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fleettrack/internal/cache"
	"fleettrack/internal/config"
	"fleettrack/internal/core/repository"
	"fleettrack/internal/core/service"
	"fleettrack/internal/fanout"
	"fleettrack/internal/log"
)

const sinkCloseTimeout = 5 * time.Second

// startSinks connects the enabled broker sinks. The returned func closes
// whatever was opened. On error nothing is left open.
func startSinks(ctx context.Context, cfg *config.Config, logger log.Logger) ([]fanout.Sink, func(), error) {
	var (
		sinks   []fanout.Sink
		closers []func() error
	)
	closeAll := func() {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		if err := errors.Join(errs...); err != nil {
			logger.Error(err, "Failed to close sinks")
		}
	}

	if cfg.MQTT.Enabled {
		p, err := fanout.NewMQTTPublisher(cfg.MQTT.ToPublisherOptions(), logger.WithName("mqtt"))
		if err != nil {
			return nil, func() {}, err
		}
		if err := p.Start(ctx); err != nil {
			return nil, func() {}, fmt.Errorf("failed to start mqtt publisher: %w", err)
		}
		sinks = append(sinks, p)
		closers = append(closers, func() error {
			closeCtx, cancel := context.WithTimeout(context.Background(), sinkCloseTimeout)
			defer cancel()
			return p.Close(closeCtx)
		})
	}

	if cfg.Kafka.Enabled {
		p, err := fanout.NewKafkaPublisher(cfg.Kafka.ToPublisherOptions(), logger.WithName("kafka"))
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, p)
		closers = append(closers, p.Close)
	}

	if cfg.NATS.Enabled {
		p, err := fanout.NewNATSPublisher(cfg.NATS.ToPublisherOptions(), logger.WithName("nats"))
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		sinks = append(sinks, p)
		closers = append(closers, p.Close)
	}

	for _, s := range sinks {
		logger.Info("Fan-out sink enabled", "sink", s.Name())
	}
	return sinks, closeAll, nil
}

// positionCache returns the in-memory cache, mirrored to Redis when a URL is
// configured.
func positionCache(ctx context.Context, opts *config.RedisOptions, logger log.Logger) (repository.PositionCache, func(), error) {
	primary := repository.NewInMemoryPositionCache()
	if opts.URL == "" {
		return primary, func() {}, nil
	}

	mirror, err := cache.NewPositionMirror(ctx, opts.URL, opts.TTL, logger.WithName("redis"))
	if err != nil {
		return nil, nil, err
	}

	mirrorLogger := logger.WithName("redis")
	cached := repository.NewMirroredPositionCache(primary, mirror, func(op string, err error) {
		mirrorLogger.Error(err, "Position mirror operation failed", "op", op)
	})
	return cached, func() {
		cached.Close()
		if err := mirror.Close(); err != nil {
			mirrorLogger.Error(err, "Failed to close redis client")
		}
	}, nil
}

func seedAssignments(ctx context.Context, opts *config.MongoOptions, registry *service.Registry, logger log.Logger) error {
	client, db, err := config.ConnectMongoDB(ctx, opts, logger.WithName("mongodb"))
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Disconnect(context.Background()); err != nil {
			logger.Error(err, "Failed to disconnect from MongoDB")
		}
	}()

	if _, err := registry.Seed(ctx, repository.NewMongoAssignmentRepository(db, opts.Collection)); err != nil {
		return fmt.Errorf("failed to seed assignments: %w", err)
	}
	return nil
}
