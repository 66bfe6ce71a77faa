package engine

import (
	"context"
	"fmt"
	"io"
	"net"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/require"

	"github.com/zoneaudio/vabridge/internal/config"
	"github.com/zoneaudio/vabridge/internal/wire"
)

// newTestEngine starts an engine bound to OS-assigned ports and
// registers cleanup to close it when the test ends.
func newTestEngine(t *testing.T, cfg config.Options) *Engine {
	t.Helper()
	cfg.OutTCPPort = 0
	cfg.InTCPPort = 0

	e, err := New(cfg, log.New(io.Discard))
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Close)
	return e
}

// dial connects to 127.0.0.1:port and registers cleanup to close it.
func dial(t *testing.T, port int) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readFrame reads one control frame from conn with a generous test
// timeout, failing the test if none arrives in time.
func readFrame(t *testing.T, conn net.Conn) wire.Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	f, err := wire.Read(conn)
	require.NoError(t, err)
	return f
}

// readPayload reads exactly n bytes of PCM payload from conn.
func readPayload(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, n)
	_, err := readFull(conn, buf)
	require.NoError(t, err)
	return buf
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
