package cache

import (
	"context"
	"testing"
	"time"

	"fleettrack/internal/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPositionKey(t *testing.T) {
	assert.Equal(t, "fleettrack:position:868900", positionKey("868900"))
}

func TestNewPositionMirrorRejectsBadURL(t *testing.T) {
	_, err := NewPositionMirror(context.Background(), "not-a-url", time.Hour, log.NewNopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse redis url")
}

func TestNewPositionMirrorFailsWhenUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Port 1 is reserved and nothing listens there.
	_, err := NewPositionMirror(ctx, "redis://127.0.0.1:1/0", time.Hour, log.NewNopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}
