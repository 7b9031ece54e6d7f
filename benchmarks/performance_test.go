// Package benchmarks
// Author: momentics <momentics@gmail.com>
//
// Performance benchmarks for hioload-rt components.

package benchmarks

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/momentics/hioload-rt/api"
	"github.com/momentics/hioload-rt/core/concurrency"
	"github.com/momentics/hioload-rt/fake"
	"github.com/momentics/hioload-rt/future"
	"github.com/momentics/hioload-rt/pool"
	"github.com/momentics/hioload-rt/reactor"
	"github.com/momentics/hioload-rt/server"
)

// BenchmarkSchedulerSpawnRun measures spawn plus one poll per task.
func BenchmarkSchedulerSpawnRun(b *testing.B) {
	r := reactor.New(fake.NewMultiplexer())
	defer r.Close()
	s := concurrency.NewScheduler(r)
	task := future.Ready[error](nil)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		s.Spawn(task)
	}
	s.Shutdown()
	if err := s.Run(); err != nil {
		b.Fatal(err)
	}
}

// BenchmarkChainPoll measures a three-stage chain completing in one poll.
func BenchmarkChainPoll(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		f := future.Chain(future.Ready(1), func(v int) api.Future[int] {
			return future.Chain(future.Ready(v+1), func(v int) api.Future[int] {
				return future.Ready(v + 1)
			})
		})
		if v, ok := f.Poll(api.Waker{}); !ok || v != 3 {
			b.Fatalf("got %d, %v", v, ok)
		}
	}
}

// BenchmarkInboxThroughput exercises the remote wake inbox under contention.
func BenchmarkInboxThroughput(b *testing.B) {
	q := concurrency.NewLockFreeQueue[api.TaskID](1024)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		var id api.TaskID
		for pb.Next() {
			if !q.Enqueue(id) {
				q.Dequeue()
				q.Enqueue(id)
			}
			id.Index++
		}
	})
}

// BenchmarkBytePool measures request buffer recycling.
func BenchmarkBytePool(b *testing.B) {
	bp := pool.NewBytePool(1024)
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			bp.PutBuffer(bp.GetBuffer())
		}
	})
}

// BenchmarkHTTPRoundTrip measures one connection per request end to end.
func BenchmarkHTTPRoundTrip(b *testing.B) {
	cfg := server.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.HandleSignals = false
	srv, err := server.NewServer(cfg)
	if err != nil {
		b.Skipf("server unavailable: %v", err)
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()
	defer func() {
		_ = srv.Shutdown()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			b.Error("server did not stop")
		}
	}()

	addr := srv.Addr().String()
	req := []byte("GET / HTTP/1.1\r\nHost: localhost\r\n\r\n")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := c.Write(req); err != nil {
			b.Fatal(err)
		}
		if _, err := io.Copy(io.Discard, c); err != nil {
			b.Fatal(err)
		}
		c.Close()
	}
}
