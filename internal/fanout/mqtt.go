package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"fleettrack/internal/core/model"
	"fleettrack/internal/log"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// MQTTOptions configures the MQTT sink.
type MQTTOptions struct {
	BrokerURL string
	Username  string
	Password  string
	ClientID  string
	TopicRoot string
}

var errMQTTNotStarted = errors.New("mqtt publisher not started")

// mqttPublishTimeout bounds how long Publish waits for a connection, since
// autopaho blocks until the broker is reachable.
const mqttPublishTimeout = time.Second

// MQTTPublisher publishes events with QoS 0 to <root>/<channel>/<deviceId>.
// The connection manager reconnects on its own; events published while the
// broker is unreachable are lost.
type MQTTPublisher struct {
	opts   MQTTOptions
	cm     *autopaho.ConnectionManager
	logger log.Logger
}

var _ Sink = (*MQTTPublisher)(nil)

func NewMQTTPublisher(opts MQTTOptions, logger log.Logger) (*MQTTPublisher, error) {
	if _, err := url.Parse(opts.BrokerURL); err != nil || opts.BrokerURL == "" {
		return nil, fmt.Errorf("invalid mqtt broker url %q", opts.BrokerURL)
	}
	if opts.ClientID == "" {
		opts.ClientID = "fleettrack"
	}
	if opts.TopicRoot == "" {
		opts.TopicRoot = "fleettrack"
	}
	return &MQTTPublisher{opts: opts, logger: logger}, nil
}

func (p *MQTTPublisher) Name() string { return "mqtt" }

// Start begins connecting in the background. The connection manager stops
// when ctx is cancelled.
func (p *MQTTPublisher) Start(ctx context.Context) error {
	brokerURL, _ := url.Parse(p.opts.BrokerURL)

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{brokerURL},
		KeepAlive:                     30,
		CleanStartOnInitialConnection: true,
		ReconnectBackoff:              autopaho.NewConstantBackoff(3 * time.Second),
		ConnectTimeout:                10 * time.Second,
		ConnectUsername:               p.opts.Username,
		ConnectPassword:               []byte(p.opts.Password),
		OnConnectionUp: func(*autopaho.ConnectionManager, *paho.Connack) {
			p.logger.Info("MQTT connection established", "broker", p.opts.BrokerURL)
		},
		OnConnectError: func(err error) {
			p.logger.Error(err, "MQTT connection failed, retrying")
		},
		ClientConfig: paho.ClientConfig{
			ClientID: p.opts.ClientID,
			OnClientError: func(err error) {
				p.logger.Error(err, "MQTT client error")
			},
		},
	}

	p.logger.Info("Starting MQTT publisher", "broker", p.opts.BrokerURL, "clientID", p.opts.ClientID)
	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return err
	}
	p.cm = cm
	return nil
}

func mqttTopic(root string, event model.Event) string {
	return strings.TrimSuffix(root, "/") + "/" + string(event.Channel()) + "/" + event.Key()
}

func (p *MQTTPublisher) Publish(ctx context.Context, event model.Event) error {
	if p.cm == nil {
		return errMQTTNotStarted
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, mqttPublishTimeout)
	defer cancel()

	_, err = p.cm.Publish(ctx, &paho.Publish{
		Topic:   mqttTopic(p.opts.TopicRoot, event),
		QoS:     0,
		Payload: payload,
	})
	return err
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close(ctx context.Context) error {
	if p.cm == nil {
		return nil
	}
	err := p.cm.Disconnect(ctx)
	p.logger.Info("MQTT publisher disconnected")
	return err
}
