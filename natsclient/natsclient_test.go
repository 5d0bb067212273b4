package natsclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floorlink/floorlink/errors"
)

func TestConnectRequiresURLs(t *testing.T) {
	_, err := Connect(Options{Name: "test"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))
}

func TestConnectFailsFastOnUnreachableServer(t *testing.T) {
	_, err := Connect(Options{
		URLs:          []string{"nats://127.0.0.1:1"},
		Name:          "test",
		MaxReconnects: 0,
		ReconnectWait: 10 * time.Millisecond,
	})
	require.Error(t, err)
}
