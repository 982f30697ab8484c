package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleettrack/internal/config"
	"fleettrack/internal/log"
)

func TestCommandRejectsInvalidConfig(t *testing.T) {
	cmd := NewServerCommand(context.Background())
	cmd.SetArgs([]string{"--tcp.port=0", "--tcp.identity-policy=loose"})
	cmd.SilenceErrors = true

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tcp.port")
	assert.Contains(t, err.Error(), "tcp.identity-policy")
}

func TestCommandRegistersFlags(t *testing.T) {
	cmd := NewServerCommand(context.Background())
	for _, name := range []string{"config", "tcp.port", "http.addr", "registry.online-window", "mqtt.enabled", "kafka.brokers", "nats.url", "redis.url", "mongodb.uri", "log.level"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), name)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := config.NewConfig()
	cfg.TCP.Port = 0
	cfg.HTTP.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, cfg, log.NewNopLogger()) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
