package rdmnet

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestBrokerInterop connects to a real broker named by the
// RDMNET_INTEROP_* environment variables and runs a connect/bind
// round trip against it. It is skipped unless RDMNET_INTEROP_HOST is
// set, so the normal test run never needs a broker on the network.
func TestBrokerInterop(t *testing.T) {
	host := os.Getenv("RDMNET_INTEROP_HOST")
	if host == "" {
		t.Skip("RDMNET_INTEROP_HOST not set")
	}

	port, _ := strconv.Atoi(os.Getenv("RDMNET_INTEROP_PORT"))

	scope := os.Getenv("RDMNET_INTEROP_SCOPE")
	if scope == "" {
		scope = "default"
	}

	endpointID := 1
	if v := os.Getenv("RDMNET_INTEROP_ENDPOINT_ID"); v != "" {
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		endpointID = n
	}

	timeout := 5000 * time.Millisecond
	if v := os.Getenv("RDMNET_INTEROP_TIMEOUT_MS"); v != "" {
		n, err := strconv.Atoi(v)
		require.NoError(t, err)
		timeout = time.Duration(n) * time.Millisecond
	}

	cfg := Config{
		Host: host,
		Port: port,
		TLS:  os.Getenv("RDMNET_INTEROP_TLS") == "1",
	}
	if os.Getenv("RDMNET_INTEROP_TLS_STRICT") == "0" {
		strict := false
		cfg.RequireTLSAuthorization = &strict
	}

	c := NewClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	defer c.Disconnect()

	err := c.StartBrokerSession(ctx, BrokerSessionOptions{
		Scope:        scope,
		Role:         RoleController,
		AutoBind:     true,
		EndpointID:   uint16(endpointID),
		EndpointRole: RoleController,
		Timeout:      timeout,
	})
	require.NoError(t, err)
	require.Equal(t, StateBound, c.State())

	if os.Getenv("RDMNET_INTEROP_CHECK_LISTS") == "1" {
		clients, err := c.QueryClientList(ctx, timeout)
		require.NoError(t, err)
		require.NotEmpty(t, clients)

		_, err = c.QueryEndpointList(ctx, timeout)
		require.NoError(t, err)
	}

	require.NoError(t, c.StopBrokerSession(0, "interop test complete"))
}
