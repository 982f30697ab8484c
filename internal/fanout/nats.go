package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fleettrack/internal/core/model"
	"fleettrack/internal/log"

	"github.com/nats-io/nats.go"
)

// NATSOptions configures the NATS sink.
type NATSOptions struct {
	URL           string
	SubjectPrefix string
}

// NATSPublisher publishes core NATS messages on <prefix>.<channel>.<deviceId>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger log.Logger
}

var _ Sink = (*NATSPublisher)(nil)

func NewNATSPublisher(opts NATSOptions, logger log.Logger) (*NATSPublisher, error) {
	conn, err := nats.Connect(opts.URL,
		nats.Name("fleettrack"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DrainTimeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Error(err, "NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats at %s: %w", opts.URL, err)
	}

	prefix := opts.SubjectPrefix
	if prefix == "" {
		prefix = "fleettrack"
	}

	logger.Info("NATS publisher connected", "url", conn.ConnectedUrl(), "prefix", prefix)
	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}, nil
}

func (p *NATSPublisher) Name() string { return "nats" }

var subjectTokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")

// natsSubject builds the subject for event. Characters with a meaning in NATS
// subjects are replaced in the device id.
func natsSubject(prefix string, event model.Event) string {
	key := subjectTokenReplacer.Replace(event.Key())
	return strings.TrimSuffix(prefix, ".") + "." + string(event.Channel()) + "." + key
}

func (p *NATSPublisher) Publish(_ context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return p.conn.Publish(natsSubject(p.prefix, event), data)
}

// Close drains pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}
