package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"fleettrack/internal/fanout"
	"fleettrack/internal/protocol/bw32"
	"fleettrack/internal/protocol/server"

	"github.com/spf13/pflag"
)

// TCPOptions configures the tracker ingestion listener.
type TCPOptions struct {
	Port           int    `json:"port" mapstructure:"port"`
	MaxBuffer      int    `json:"max-buffer" mapstructure:"max-buffer"`
	IdentityPolicy string `json:"identity-policy" mapstructure:"identity-policy"`
}

func NewTCPOptions() *TCPOptions {
	return &TCPOptions{
		Port:           50100,
		MaxBuffer:      bw32.DefaultMaxBuffer,
		IdentityPolicy: string(server.IdentityStrict),
	}
}

func (o *TCPOptions) Validate() []error {
	var errs []error
	if o.Port < 1 || o.Port > 65535 {
		errs = append(errs, fmt.Errorf("tcp.port must be between 1 and 65535, got %d", o.Port))
	}
	if o.MaxBuffer < 64 {
		errs = append(errs, fmt.Errorf("tcp.max-buffer must be at least 64 bytes, got %d", o.MaxBuffer))
	}
	if !server.IdentityPolicy(o.IdentityPolicy).Valid() {
		errs = append(errs, fmt.Errorf("tcp.identity-policy must be 'strict' or 'multiplex', got %q", o.IdentityPolicy))
	}
	return errs
}

func (o *TCPOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.Port, "tcp.port", o.Port, "Port the tracker ingestion server listens on.")
	fs.IntVar(&o.MaxBuffer, "tcp.max-buffer", o.MaxBuffer, "Bytes buffered per connection while waiting for a frame delimiter.")
	fs.StringVar(&o.IdentityPolicy, "tcp.identity-policy", o.IdentityPolicy, "Handling of a second device id on one connection ('strict' or 'multiplex').")
}

// HTTPOptions configures the management API and WebSocket listener.
type HTTPOptions struct {
	Addr            string        `json:"addr" mapstructure:"addr"`
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

func NewHTTPOptions() *HTTPOptions {
	return &HTTPOptions{
		Addr:            ":8000",
		ShutdownTimeout: 10 * time.Second,
	}
}

func (o *HTTPOptions) Validate() []error {
	var errs []error
	if _, port, err := net.SplitHostPort(o.Addr); err != nil || port == "" {
		errs = append(errs, fmt.Errorf("http.addr %q is not a host:port address", o.Addr))
	}
	return errs
}

func (o *HTTPOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Addr, "http.addr", o.Addr, "Bind address of the HTTP API.")
	fs.DurationVar(&o.ShutdownTimeout, "http.shutdown-timeout", o.ShutdownTimeout, "Grace period for in-flight HTTP requests on shutdown.")
}

// RegistryOptions configures the device registry.
type RegistryOptions struct {
	OnlineWindow time.Duration `json:"online-window" mapstructure:"online-window"`
}

func NewRegistryOptions() *RegistryOptions {
	return &RegistryOptions{OnlineWindow: 5 * time.Minute}
}

func (o *RegistryOptions) Validate() []error {
	if o.OnlineWindow <= 0 {
		return []error{fmt.Errorf("registry.online-window must be positive, got %s", o.OnlineWindow)}
	}
	return nil
}

func (o *RegistryOptions) AddFlags(fs *pflag.FlagSet) {
	fs.DurationVar(&o.OnlineWindow, "registry.online-window", o.OnlineWindow, "How long after its last message a device counts as online.")
}

// FanoutOptions configures the per-sink delivery queues.
type FanoutOptions struct {
	QueueSize int `json:"queue-size" mapstructure:"queue-size"`
}

func NewFanoutOptions() *FanoutOptions {
	return &FanoutOptions{QueueSize: fanout.DefaultQueueSize}
}

func (o *FanoutOptions) Validate() []error {
	if o.QueueSize < 1 {
		return []error{fmt.Errorf("fanout.queue-size must be at least 1, got %d", o.QueueSize)}
	}
	return nil
}

func (o *FanoutOptions) AddFlags(fs *pflag.FlagSet) {
	fs.IntVar(&o.QueueSize, "fanout.queue-size", o.QueueSize, "Events buffered per sink; further events are dropped for that sink until it catches up.")
}

// MQTTOptions configures the MQTT fan-out sink.
type MQTTOptions struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Broker    string `json:"broker" mapstructure:"broker"`
	Username  string `json:"username" mapstructure:"username"`
	Password  string `json:"password" mapstructure:"password"`
	ClientID  string `json:"client-id" mapstructure:"client-id"`
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`
}

func NewMQTTOptions() *MQTTOptions {
	return &MQTTOptions{
		Broker:    "mqtt://localhost:1883",
		ClientID:  "fleettrack",
		TopicRoot: "fleettrack",
	}
}

func (o *MQTTOptions) Validate() []error {
	if o.Enabled && o.Broker == "" {
		return []error{fmt.Errorf("mqtt.broker is required when mqtt is enabled")}
	}
	return nil
}

func (o *MQTTOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "mqtt.enabled", o.Enabled, "Publish events to an MQTT broker.")
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "MQTT client id.")
	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Topic prefix; events go to <root>/<channel>/<deviceId>.")
}

func (o *MQTTOptions) ToPublisherOptions() fanout.MQTTOptions {
	return fanout.MQTTOptions{
		BrokerURL: o.Broker,
		Username:  o.Username,
		Password:  o.Password,
		ClientID:  o.ClientID,
		TopicRoot: o.TopicRoot,
	}
}

// KafkaOptions configures the Kafka fan-out sink.
type KafkaOptions struct {
	Enabled bool     `json:"enabled" mapstructure:"enabled"`
	Brokers []string `json:"brokers" mapstructure:"brokers"`
	Topic   string   `json:"topic" mapstructure:"topic"`
}

func NewKafkaOptions() *KafkaOptions {
	return &KafkaOptions{
		Brokers: []string{"localhost:9092"},
		Topic:   "fleettrack.events",
	}
}

func (o *KafkaOptions) Validate() []error {
	if o.Enabled && (len(o.Brokers) == 0 || o.Topic == "") {
		return []error{fmt.Errorf("kafka.brokers and kafka.topic are required when kafka is enabled")}
	}
	return nil
}

func (o *KafkaOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "kafka.enabled", o.Enabled, "Publish events to Kafka.")
	fs.StringSliceVar(&o.Brokers, "kafka.brokers", o.Brokers, "Kafka bootstrap brokers.")
	fs.StringVar(&o.Topic, "kafka.topic", o.Topic, "Kafka topic for all events.")
}

func (o *KafkaOptions) ToPublisherOptions() fanout.KafkaOptions {
	brokers := make([]string, 0, len(o.Brokers))
	for _, b := range o.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return fanout.KafkaOptions{Brokers: brokers, Topic: o.Topic}
}

// NATSOptions configures the NATS fan-out sink.
type NATSOptions struct {
	Enabled       bool   `json:"enabled" mapstructure:"enabled"`
	URL           string `json:"url" mapstructure:"url"`
	SubjectPrefix string `json:"subject-prefix" mapstructure:"subject-prefix"`
}

func NewNATSOptions() *NATSOptions {
	return &NATSOptions{
		URL:           "nats://localhost:4222",
		SubjectPrefix: "fleettrack",
	}
}

func (o *NATSOptions) Validate() []error {
	if o.Enabled && o.URL == "" {
		return []error{fmt.Errorf("nats.url is required when nats is enabled")}
	}
	return nil
}

func (o *NATSOptions) AddFlags(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Enabled, "nats.enabled", o.Enabled, "Publish events to NATS.")
	fs.StringVar(&o.URL, "nats.url", o.URL, "NATS server URL.")
	fs.StringVar(&o.SubjectPrefix, "nats.subject-prefix", o.SubjectPrefix, "Subject prefix; events go to <prefix>.<channel>.<deviceId>.")
}

func (o *NATSOptions) ToPublisherOptions() fanout.NATSOptions {
	return fanout.NATSOptions{URL: o.URL, SubjectPrefix: o.SubjectPrefix}
}

// RedisOptions configures the latest-position mirror. An empty URL disables it.
type RedisOptions struct {
	URL string        `json:"url" mapstructure:"url"`
	TTL time.Duration `json:"ttl" mapstructure:"ttl"`
}

func NewRedisOptions() *RedisOptions {
	return &RedisOptions{TTL: 24 * time.Hour}
}

func (o *RedisOptions) Validate() []error {
	if o.URL != "" && o.TTL < 0 {
		return []error{fmt.Errorf("redis.ttl must not be negative, got %s", o.TTL)}
	}
	return nil
}

func (o *RedisOptions) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.URL, "redis.url", o.URL, "Redis URL for the latest-position mirror (empty disables it).")
	fs.DurationVar(&o.TTL, "redis.ttl", o.TTL, "Expiry of mirrored positions (0 keeps them forever).")
}
