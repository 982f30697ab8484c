// Package config assembles the service configuration from defaults, an
// optional config file, FLEETTRACK_* environment variables and flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"fleettrack/internal/log"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "FLEETTRACK"

type Config struct {
	TCP      *TCPOptions      `json:"tcp" mapstructure:"tcp"`
	HTTP     *HTTPOptions     `json:"http" mapstructure:"http"`
	Registry *RegistryOptions `json:"registry" mapstructure:"registry"`
	Fanout   *FanoutOptions   `json:"fanout" mapstructure:"fanout"`
	MQTT     *MQTTOptions     `json:"mqtt" mapstructure:"mqtt"`
	Kafka    *KafkaOptions    `json:"kafka" mapstructure:"kafka"`
	NATS     *NATSOptions     `json:"nats" mapstructure:"nats"`
	Redis    *RedisOptions    `json:"redis" mapstructure:"redis"`
	MongoDB  *MongoOptions    `json:"mongodb" mapstructure:"mongodb"`
	Log      *log.Options     `json:"log" mapstructure:"log"`
}

// NewConfig returns the configuration with every default filled in.
func NewConfig() *Config {
	return &Config{
		TCP:      NewTCPOptions(),
		HTTP:     NewHTTPOptions(),
		Registry: NewRegistryOptions(),
		Fanout:   NewFanoutOptions(),
		MQTT:     NewMQTTOptions(),
		Kafka:    NewKafkaOptions(),
		NATS:     NewNATSOptions(),
		Redis:    NewRedisOptions(),
		MongoDB:  NewMongoOptions(),
		Log:      log.NewOptions(),
	}
}

// AddFlags registers every option on fs. Flag names double as viper keys.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	c.TCP.AddFlags(fs)
	c.HTTP.AddFlags(fs)
	c.Registry.AddFlags(fs)
	c.Fanout.AddFlags(fs)
	c.MQTT.AddFlags(fs)
	c.Kafka.AddFlags(fs)
	c.NATS.AddFlags(fs)
	c.Redis.AddFlags(fs)
	c.MongoDB.AddFlags(fs)
	c.Log.AddFlags(fs)
}

// Validate reports every invalid option at once.
func (c *Config) Validate() error {
	var errs []error
	errs = append(errs, c.TCP.Validate()...)
	errs = append(errs, c.HTTP.Validate()...)
	errs = append(errs, c.Registry.Validate()...)
	errs = append(errs, c.Fanout.Validate()...)
	errs = append(errs, c.MQTT.Validate()...)
	errs = append(errs, c.Kafka.Validate()...)
	errs = append(errs, c.NATS.Validate()...)
	errs = append(errs, c.Redis.Validate()...)
	errs = append(errs, c.MongoDB.Validate()...)
	errs = append(errs, c.Log.Validate()...)
	return errors.Join(errs...)
}

// Load fills c from configFile (optional), the environment and the flags in
// fs, which must have been registered with AddFlags and parsed.
func (c *Config) Load(fs *pflag.FlagSet, configFile string) error {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	if err := v.BindPFlags(fs); err != nil {
		return fmt.Errorf("bind flags: %w", err)
	}

	if err := v.Unmarshal(c); err != nil {
		return fmt.Errorf("decode configuration: %w", err)
	}
	return nil
}
