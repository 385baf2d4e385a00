// Package tcpclient streams bird-strike risk events to an external command
// server: 4-byte big-endian length-prefixed JSON over TCP, with automatic
// reconnection and level-duplicate suppression (spec §4.H).
package tcpclient

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/airfield/birdstrike/internal/metrics"
	"github.com/airfield/birdstrike/internal/model"
	"github.com/airfield/birdstrike/internal/monitoring"
	"github.com/airfield/birdstrike/internal/timeutil"
)

// Config holds connection and timing parameters (spec §6 tcp.*).
type Config struct {
	Host            string
	Port            int
	MinSendInterval time.Duration
	ConnectTimeout  time.Duration
	ReconnectDelay  time.Duration
	HeartbeatPeriod time.Duration
	QueueCapacity   int
}

// DefaultConfig matches spec §4.H/§6 defaults.
func DefaultConfig() Config {
	return Config{
		MinSendInterval: time.Second,
		ConnectTimeout:  5 * time.Second,
		ReconnectDelay:  5 * time.Second,
		HeartbeatPeriod: 30 * time.Second,
		QueueCapacity:   64,
	}
}

type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
)

// atomicState guards the client's connection state for concurrent reads
// from State() while Run's goroutine drives transitions.
type atomicState struct {
	v atomic.Int32
}

func (s *atomicState) Load() connState    { return connState(s.v.Load()) }
func (s *atomicState) Store(st connState) { s.v.Store(int32(st)) }

type outboundKind int

const (
	kindEvent outboundKind = iota
	kindHeartbeat
	kindConnectionNotice
)

type outbound struct {
	kind     outboundKind
	level    model.Level
	payload  []byte
	requeued bool
}

// Dialer abstracts net.Dial for tests.
type Dialer interface {
	DialTimeout(network, address string, timeout time.Duration) (net.Conn, error)
}

type netDialer struct{}

func (netDialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, address, timeout)
}

// Client runs the outbound event stream in Run, accepting level changes via
// SendLevelChange. Run returns when its context is cancelled; messages still
// in the queue at that point are not sent.
type Client struct {
	cfg    Config
	clock  timeutil.Clock
	dialer Dialer

	queue chan outbound

	state atomicState

	lastSentLevel    model.Level
	hasLastSentLevel bool
	lastSentAt       time.Time
}

// State reports the client's current connection state, for health checks
// and tests.
func (c *Client) State() connState {
	return c.state.Load()
}

// New builds a Client. Call Run to begin the connection loop.
func New(cfg Config, clock timeutil.Clock) *Client {
	return &Client{
		cfg:    cfg,
		clock:  clock,
		dialer: netDialer{},
		queue:  make(chan outbound, cfg.QueueCapacity),
	}
}

// SendLevelChange enqueues a level-change event, subject to duplicate
// suppression: an event with the same level as the last *accepted* event
// within MinSendInterval is discarded before enqueue (spec §4.H).
func (c *Client) SendLevelChange(level model.Level, now time.Time) {
	if c.hasLastSentLevel && level == c.lastSentLevel && now.Sub(c.lastSentAt) < c.cfg.MinSendInterval {
		return
	}
	c.lastSentLevel = level
	c.hasLastSentLevel = true
	c.lastSentAt = now

	payload, err := json.Marshal(map[string]any{
		"type":      "event",
		"event":     "BR_CHANGED",
		"result":    level.Wire(),
		"timestamp": now.Unix(),
	})
	if err != nil {
		monitoring.Logf("tcpclient: marshal level-change event: %v", err)
		return
	}
	c.enqueue(outbound{kind: kindEvent, level: level, payload: payload})
}

func (c *Client) enqueue(msg outbound) {
	select {
	case c.queue <- msg:
	default:
		monitoring.Logf("tcpclient: outbound queue full, dropping message")
	}
}

// Run drives the disconnected -> connecting -> connected state machine until
// ctx is cancelled, reconnecting every ReconnectDelay (spec §4.H, §5).
func (c *Client) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", c.cfg.Host, c.cfg.Port)
	attempted := false

	for {
		if ctx.Err() != nil {
			c.state.Store(stateDisconnected)
			return nil
		}

		if attempted {
			metrics.TCPReconnects.Inc()
		}
		attempted = true
		c.state.Store(stateConnecting)
		conn, err := c.dialer.DialTimeout("tcp", addr, c.cfg.ConnectTimeout)
		if err != nil {
			c.state.Store(stateDisconnected)
			monitoring.Logf("tcpclient: connect to %s failed: %v", addr, err)
			if !c.waitReconnect(ctx) {
				return nil
			}
			continue
		}

		c.state.Store(stateConnected)
		keepGoing := c.runConnection(ctx, conn)
		c.state.Store(stateDisconnected)
		if !keepGoing {
			return nil
		}
	}
}

func (c *Client) waitReconnect(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-c.clock.After(c.cfg.ReconnectDelay):
		return true
	}
}

// runConnection services one TCP connection until it errors or ctx is
// cancelled. Returns false if the caller should stop entirely (ctx done).
func (c *Client) runConnection(ctx context.Context, conn net.Conn) bool {
	defer conn.Close()

	notice, err := json.Marshal(map[string]any{
		"type":      "connection",
		"status":    "connected",
		"timestamp": c.clock.Now().Unix(),
	})
	if err == nil {
		if werr := writeFramed(conn, notice); werr != nil {
			monitoring.Logf("tcpclient: connection notice send failed: %v", werr)
			return true
		}
	}

	heartbeat := c.clock.NewTicker(c.cfg.HeartbeatPeriod)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return false

		case <-heartbeat.C():
			hb, err := json.Marshal(map[string]any{
				"type":      "heartbeat",
				"status":    "alive",
				"timestamp": c.clock.Now().Unix(),
			})
			if err != nil {
				continue
			}
			if err := writeFramed(conn, hb); err != nil {
				monitoring.Logf("tcpclient: heartbeat send failed, disconnecting: %v", err)
				return true
			}

		case msg := <-c.queue:
			if err := writeFramed(conn, msg.payload); err != nil {
				monitoring.Logf("tcpclient: send failed, disconnecting: %v", err)
				if msg.kind == kindEvent && !msg.requeued {
					msg.requeued = true
					c.enqueue(msg)
				}
				return true
			}
		}
	}
}

func writeFramed(conn net.Conn, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := conn.Write(header[:]); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if _, err := conn.Write(payload); err != nil {
		return fmt.Errorf("writing frame payload: %w", err)
	}
	return nil
}
