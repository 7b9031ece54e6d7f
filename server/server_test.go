//go:build linux

package server_test

import (
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/momentics/hioload-rt/control"
	"github.com/momentics/hioload-rt/server"
)

const (
	request  = "GET / HTTP/1.1\r\nHost: localhost\r\n\r\n"
	response = "HTTP/1.1 200 OK\r\nContent-Length: 12\nConnection: close\r\n\r\nHello world!"
)

type running struct {
	srv   *server.Server
	reg   *prometheus.Registry
	errCh chan error
}

func start(t *testing.T, mutate func(*server.Config)) *running {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.HandleSignals = false
	cfg.ShutdownTimeout = 5 * time.Second
	if mutate != nil {
		mutate(cfg)
	}
	reg := prometheus.NewRegistry()
	srv, err := server.NewServer(cfg,
		server.WithMetrics(control.NewMetrics(reg)),
		server.WithDebugProbes(control.NewDebugProbes()),
	)
	require.NoError(t, err)

	r := &running{srv: srv, reg: reg, errCh: make(chan error, 1)}
	go func() { r.errCh <- srv.Run() }()
	t.Cleanup(func() {
		_ = srv.Shutdown()
		select {
		case <-r.errCh:
		case <-time.After(10 * time.Second):
			t.Error("server did not stop")
		}
	})
	return r
}

func (r *running) stop(t *testing.T) error {
	t.Helper()
	require.NoError(t, r.srv.Shutdown())
	select {
	case err := <-r.errCh:
		r.errCh <- err
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
		return nil
	}
}

func roundTrip(addr string) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		return "", err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err := io.WriteString(conn, request); err != nil {
		return "", err
	}
	b, err := io.ReadAll(conn)
	return string(b), err
}

func TestServer_CannedResponse(t *testing.T) {
	for _, mode := range []server.HandlerMode{server.HandlerState, server.HandlerChain} {
		mode := mode
		t.Run(string(mode), func(t *testing.T) {
			r := start(t, func(c *server.Config) { c.Handler = mode })
			got, err := roundTrip(r.srv.Addr().String())
			require.NoError(t, err)
			assert.Equal(t, response, got)
			require.NoError(t, r.stop(t))
		})
	}
}

func TestServer_ZeroByteClient(t *testing.T) {
	r := start(t, nil)
	addr := r.srv.Addr().String()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return gatherValue(t, r.reg, "hioload_server_client_disconnects_total") == 1
	}, 2*time.Second, 5*time.Millisecond)

	got, err := roundTrip(addr)
	require.NoError(t, err)
	assert.Equal(t, response, got)
	require.NoError(t, r.stop(t))
}

func TestServer_ConcurrentClients(t *testing.T) {
	for _, mode := range []server.HandlerMode{server.HandlerState, server.HandlerChain} {
		mode := mode
		t.Run(string(mode), func(t *testing.T) {
			r := start(t, func(c *server.Config) { c.Handler = mode })
			addr := r.srv.Addr().String()

			var g errgroup.Group
			for i := 0; i < 50; i++ {
				g.Go(func() error {
					got, err := roundTrip(addr)
					if err != nil {
						return err
					}
					if got != response {
						return fmt.Errorf("unexpected response %q", got)
					}
					return nil
				})
			}
			require.NoError(t, g.Wait())
			require.NoError(t, r.stop(t))
			assert.Equal(t, 50.0, gatherValue(t, r.reg, "hioload_server_connections_accepted_total"))
		})
	}
}

func TestServer_ShutdownDrainsInFlight(t *testing.T) {
	r := start(t, nil)
	addr := r.srv.Addr().String()

	conns := make([]net.Conn, 3)
	for i := range conns {
		c, err := net.Dial("tcp", addr)
		require.NoError(t, err)
		defer c.Close()
		_, err = io.WriteString(c, request[:10])
		require.NoError(t, err)
		conns[i] = c
	}
	require.Eventually(t, func() bool {
		return gatherValue(t, r.reg, "hioload_server_connections_active") == 3
	}, 2*time.Second, 5*time.Millisecond)

	began := time.Now()
	require.NoError(t, r.srv.Shutdown())

	// New connections are refused once the listener is closed.
	require.Eventually(t, func() bool {
		c, err := net.DialTimeout("tcp", addr, 100*time.Millisecond)
		if err != nil {
			return true
		}
		c.Close()
		return false
	}, 2*time.Second, 10*time.Millisecond)

	for _, c := range conns {
		_ = c.SetDeadline(time.Now().Add(5 * time.Second))
		_, err := io.WriteString(c, request[10:])
		require.NoError(t, err)
		b, err := io.ReadAll(c)
		require.NoError(t, err)
		assert.Equal(t, response, string(b))
	}

	select {
	case err := <-r.errCh:
		r.errCh <- err
		require.NoError(t, err)
	case <-time.After(4 * time.Second):
		t.Fatal("drain did not finish before the shutdown timeout")
	}
	assert.Less(t, time.Since(began), 4*time.Second)
	assert.Zero(t, gatherValue(t, r.reg, "hioload_server_shutdown_timeouts_total"))
}

func TestServer_ShutdownTimeout(t *testing.T) {
	r := start(t, func(c *server.Config) { c.ShutdownTimeout = 100 * time.Millisecond })

	c, err := net.Dial("tcp", r.srv.Addr().String())
	require.NoError(t, err)
	defer c.Close()
	_, err = io.WriteString(c, request[:5])
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return gatherValue(t, r.reg, "hioload_server_connections_active") == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, r.stop(t))
	assert.Equal(t, 1.0, gatherValue(t, r.reg, "hioload_server_shutdown_timeouts_total"))

	// The abandoned connection is closed by the server.
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	b, _ := io.ReadAll(c)
	assert.Empty(t, b)
}

func TestServer_RunTwice(t *testing.T) {
	r := start(t, nil)
	require.NoError(t, r.stop(t))
	assert.ErrorIs(t, r.srv.Run(), server.ErrAlreadyRunning)
	assert.NoError(t, r.srv.Shutdown(), "Shutdown is idempotent")
}

func TestNewServer_Errors(t *testing.T) {
	cfg := server.DefaultConfig()
	cfg.Handler = "threads"
	_, err := server.NewServer(cfg)
	assert.Error(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	cfg = server.DefaultConfig()
	cfg.ListenAddr = ln.Addr().String()
	_, err = server.NewServer(cfg)
	assert.Error(t, err, "address already in use")
}

// gatherValue sums the samples of the named counter or gauge family.
func gatherValue(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	mfs, err := g.Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				sum += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				sum += m.GetGauge().GetValue()
			}
		}
	}
	return sum
}
