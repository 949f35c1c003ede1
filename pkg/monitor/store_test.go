package monitor

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/AdamManuel-dev/ai-news-curator-sub001/pkg/pool"
)

// startRedisStub serves just enough of the redis protocol for the store
// to connect and read an empty dataset: PING answers PONG, range reads
// answer an empty array, everything else errors.
func startRedisStub(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveRedisStub(conn)
		}
	}()
	return ln.Addr().String()
}

func serveRedisStub(conn net.Conn) {
	defer conn.Close()
	r := bufio.NewReader(conn)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "*") {
			continue
		}
		n, err := strconv.Atoi(line[1:])
		if err != nil || n < 1 {
			return
		}
		args := make([]string, 0, n)
		for i := 0; i < n; i++ {
			if _, err := r.ReadString('\n'); err != nil {
				return
			}
			arg, err := r.ReadString('\n')
			if err != nil {
				return
			}
			args = append(args, strings.TrimSpace(arg))
		}
		switch strings.ToUpper(args[0]) {
		case "PING":
			_, _ = conn.Write([]byte("+PONG\r\n"))
		case "ZRANGEBYSCORE":
			_, _ = conn.Write([]byte("*0\r\n"))
		default:
			_, _ = conn.Write([]byte("-ERR unknown command\r\n"))
		}
	}
}

// With no redis reachable the store must degrade: every call is a
// silent no-op and nothing panics or propagates.
func TestStoreDegradesWhenUnavailable(t *testing.T) {
	s := NewMetricsStore("127.0.0.1:1", "", 0, zaptest.NewLogger(t))
	ctx := context.Background()

	require.False(t, s.Connect(ctx))
	require.False(t, s.Available())

	s.AddSnapshot(ctx, pool.PoolMetrics{TotalQueries: 1}, time.Hour)
	s.SaveAlert(ctx, Alert{ID: "a-1", Type: AlertHighLatency})
	s.PruneSnapshots(ctx, time.Now())
	s.PruneAlerts(ctx, time.Now())

	require.Nil(t, s.SnapshotsSince(ctx, time.Now().Add(-time.Hour)))
	require.Nil(t, s.AlertsSince(ctx, time.Now().Add(-time.Hour)))

	s.Close()
	require.False(t, s.Available())
}

// A Close/Connect cycle must come back with a working client; the
// monitor does exactly this across Stop/Start.
func TestStoreReconnectsAfterClose(t *testing.T) {
	addr := startRedisStub(t)
	s := NewMetricsStore(addr, "", 0, zaptest.NewLogger(t))
	ctx := context.Background()

	require.True(t, s.Connect(ctx))
	require.True(t, s.Available())

	s.Close()
	require.False(t, s.Available())

	require.True(t, s.Connect(ctx))
	require.True(t, s.Available())
	s.Close()
}

// An empty reachable store answers with an empty slice, never nil; nil
// is reserved for "store down" so the dashboard can fall back.
func TestAlertsSinceEmptyStoreIsNotNil(t *testing.T) {
	addr := startRedisStub(t)
	s := NewMetricsStore(addr, "", 0, zaptest.NewLogger(t))
	ctx := context.Background()

	require.True(t, s.Connect(ctx))
	defer s.Close()

	got := s.AlertsSince(ctx, time.Now().Add(-time.Hour))
	require.NotNil(t, got)
	require.Empty(t, got)
}
