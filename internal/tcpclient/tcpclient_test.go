package tcpclient

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/airfield/birdstrike/internal/model"
	"github.com/airfield/birdstrike/internal/timeutil"
)

func readFrame(t *testing.T, conn net.Conn) map[string]any {
	t.Helper()
	var header [4]byte
	_, err := io.ReadFull(conn, header[:])
	require.NoError(t, err)
	length := binary.BigEndian.Uint32(header[:])
	buf := make([]byte, length)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	var msg map[string]any
	require.NoError(t, json.Unmarshal(buf, &msg))
	return msg
}

func startEchoListener(t *testing.T) (net.Listener, func() net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	acceptCh := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			acceptCh <- conn
		}
	}()
	return ln, func() net.Conn {
		select {
		case c := <-acceptCh:
			return c
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for accept")
			return nil
		}
	}
}

func hostPort(t *testing.T, ln net.Listener) (string, int) {
	t.Helper()
	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestClient_SendsConnectionNoticeThenLevelChange(t *testing.T) {
	ln, accept := startEchoListener(t)
	defer ln.Close()

	host, port := hostPort(t, ln)
	cfg := DefaultConfig()
	cfg.Host, cfg.Port = host, port
	cfg.HeartbeatPeriod = time.Hour

	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	client := New(cfg, clock)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() { client.Run(ctx); close(done) }()

	conn := accept()
	defer conn.Close()

	notice := readFrame(t, conn)
	require.Equal(t, "connection", notice["type"])
	require.Equal(t, "connected", notice["status"])
	require.Equal(t, stateConnected, client.State())

	client.SendLevelChange(model.LevelHigh, clock.Now())
	event := readFrame(t, conn)
	require.Equal(t, "event", event["type"])
	require.Equal(t, "BR_CHANGED", event["event"])
	require.Equal(t, "BR_HIGH", event["result"])

	cancel()
	<-done
	require.Equal(t, stateDisconnected, client.State())
}

func TestClient_SuppressesDuplicateLevelWithinInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinSendInterval = time.Second
	clock := timeutil.NewMockClock(time.Unix(2000, 0))
	client := New(cfg, clock)

	client.SendLevelChange(model.LevelHigh, clock.Now())
	require.Len(t, client.queue, 1)

	client.SendLevelChange(model.LevelHigh, clock.Now().Add(500*time.Millisecond))
	require.Len(t, client.queue, 1, "duplicate level within interval should be suppressed")

	client.SendLevelChange(model.LevelHigh, clock.Now().Add(2*time.Second))
	require.Len(t, client.queue, 2, "same level after interval elapses should enqueue")
}

func TestClient_DropsWhenQueueFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueCapacity = 1
	clock := timeutil.NewMockClock(time.Unix(3000, 0))
	client := New(cfg, clock)

	client.SendLevelChange(model.LevelHigh, clock.Now())
	client.SendLevelChange(model.LevelLow, clock.Now().Add(10*time.Second))
	require.Len(t, client.queue, 1, "second message dropped when queue full")
}
