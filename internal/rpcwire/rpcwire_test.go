package rpcwire

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flockgroup/flock/internal/runtime"
)

type echoArgs struct {
	Message string `json:"message"`
}

type echoResult struct {
	Echo string `json:"echo"`
}

func startEchoServer(t *testing.T, transport *runtime.InMemTransport, addr string) *Dispatcher {
	t.Helper()
	d := NewDispatcher()
	d.Register(OpIdentity, func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) {
		return json.Marshal(Identity)
	})
	d.Register("echo", func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
		var in echoArgs
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, err
		}
		return json.Marshal(echoResult{Echo: in.Message})
	})

	ln, err := transport.Listen(context.Background(), addr)
	require.NoError(t, err)
	pool := runtime.NewErrgroupPool(4)
	go Serve(context.Background(), ln, pool, d, time.Second)
	t.Cleanup(func() { ln.Close(); pool.Close() })
	return d
}

func TestIdentityAndEchoRoundTrip(t *testing.T) {
	transport := runtime.NewInMemTransport()
	startEchoServer(t, transport, "server-1")

	caller, err := Dial(context.Background(), transport, "server-1", time.Second)
	require.NoError(t, err)
	defer caller.Close()

	var identity string
	require.NoError(t, caller.Call(OpIdentity, nil, &identity))
	require.Equal(t, Identity, identity)

	var out echoResult
	require.NoError(t, caller.Call("echo", echoArgs{Message: "hello"}, &out))
	require.Equal(t, "hello", out.Echo)
}

func TestUnknownOperationReturnsError(t *testing.T) {
	transport := runtime.NewInMemTransport()
	startEchoServer(t, transport, "server-2")

	caller, err := Dial(context.Background(), transport, "server-2", time.Second)
	require.NoError(t, err)
	defer caller.Close()

	err = caller.Call("does-not-exist", nil, nil)
	require.Error(t, err)
}
