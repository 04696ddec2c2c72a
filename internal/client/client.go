// Package client implements one logical connection to the benchmark
// target: a persistent websocket channel with request-id matched calls
// and subscriptions, plus an HTTP request/response path with bounded
// retries. A fixed-size round-robin pool of clients lives in pool.go.
//
// Clients are not safe for concurrent use of the same instance by
// multiple virtual users; each iteration takes exclusive use of its
// pool-provided client for the duration of a call.
package client

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/stdb-loadgen/internal/metrics"
)

// State is the connection lifecycle state. Transitions follow a fixed
// edge set: Disconnected -> Connecting -> Connected -> {Subscribing ->
// Subscribed | Error}; Close moves any state through Closing back to
// Disconnected.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSubscribing
	StateSubscribed
	StateError
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribing:
		return "subscribing"
	case StateSubscribed:
		return "subscribed"
	case StateError:
		return "error"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

// Config carries everything a client needs, populated once at startup.
type Config struct {
	// BaseURL is the http(s) origin of the target, e.g. "http://localhost:3000".
	BaseURL string
	// WSURL is the websocket endpoint for the persistent channel.
	WSURL string
	// Module is the target database/module name used in call paths.
	Module string
	// Token is an optional bearer credential.
	Token string

	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration
	SubscribeWait     time.Duration
	HeartbeatInterval time.Duration
	RetryDelay        time.Duration
	MaxRetries        int

	// HTTPClient overrides the default transport, mainly for tests.
	HTTPClient *http.Client
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 10 * time.Second
	}
	if c.SubscribeWait == 0 {
		c.SubscribeWait = 500 * time.Millisecond
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = 100 * time.Millisecond
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.RequestTimeout}
	}
}

// completedCacheSize bounds the memory spent remembering resolved
// request ids for late-response classification.
const completedCacheSize = 1024

// SubscribeResult reports one subscribe attempt. Acked distinguishes a
// confirmed subscription from the optimistic transition taken when the
// acknowledgment did not arrive inside the bounded wait.
type SubscribeResult struct {
	Success        bool
	SubscriptionID uint64
	Acked          bool
}

// CallResult reports one persistent-channel reducer call. On failure,
// Kind carries the error classification for the caller's metrics timer.
type CallResult struct {
	Success   bool
	RequestID uint64
	Kind      metrics.ErrorKind
}

// Client is one logical connection to the target.
type Client struct {
	id       string
	cfg      Config
	log      *logrus.Entry
	registry *metrics.Registry

	state atomic.Int32

	mu     sync.Mutex // guards conn and stopCh
	conn   *websocket.Conn
	stopCh chan struct{}

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint64]chan ServerFrame
	completed *lru.Cache[uint64, time.Time]

	subsMu        sync.Mutex
	subscriptions map[string]time.Time

	nextRequestID atomic.Uint64
	lastHeartbeat atomic.Int64
	identity      atomic.Value // string

	breaker *gobreaker.CircuitBreaker
}

// New creates a disconnected client.
func New(cfg Config, registry *metrics.Registry, log *logrus.Logger) *Client {
	cfg.applyDefaults()
	if log == nil {
		log = logrus.StandardLogger()
	}

	id := uuid.NewString()
	completed, _ := lru.New[uint64, time.Time](completedCacheSize)

	c := &Client{
		id:            id,
		cfg:           cfg,
		log:           log.WithField("connection_id", id),
		registry:      registry,
		pending:       make(map[uint64]chan ServerFrame),
		completed:     completed,
		subscriptions: make(map[string]time.Time),
	}
	c.identity.Store("")
	c.breaker = newHTTPBreaker(id, c.log)
	return c
}

// ID returns the connection identifier.
func (c *Client) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Client) casState(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// Healthy reports whether the client can carry persistent-channel calls.
func (c *Client) Healthy() bool {
	s := c.State()
	return s == StateConnected || s == StateSubscribed
}

// Identity returns the session identity captured from the server's
// identity_token frame, or "" before one arrives.
func (c *Client) Identity() string {
	v, _ := c.identity.Load().(string)
	return v
}

// LastHeartbeat returns the time of the last pong (or connect).
func (c *Client) LastHeartbeat() time.Time {
	n := c.lastHeartbeat.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Subscriptions returns the active subscription queries.
func (c *Client) Subscriptions() []string {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	out := make([]string, 0, len(c.subscriptions))
	for q := range c.subscriptions {
		out = append(out, q)
	}
	return out
}

// Connect opens the persistent channel and arms the heartbeat. It
// returns false on failure instead of an error, recording a connection
// failure against the registry; one failed dial never aborts a caller.
func (c *Client) Connect(ctx context.Context) bool {
	if !c.casState(StateDisconnected, StateConnecting) {
		return c.Healthy()
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.ConnectTimeout}
	header := http.Header{}
	if c.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.WSURL, header)
	if err != nil {
		c.setState(StateError)
		c.registry.RecordError(metrics.ErrKindConnection, metrics.OpWrite)
		c.log.WithError(err).WithField("url", c.cfg.WSURL).Warn("websocket dial failed")
		return false
	}

	stopCh := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.stopCh = stopCh
	c.mu.Unlock()

	c.lastHeartbeat.Store(time.Now().UnixNano())
	c.setState(StateConnected)

	go c.readLoop(conn)
	go c.heartbeatLoop(conn, stopCh)

	c.log.WithField("url", c.cfg.WSURL).Info("connected")
	return true
}

// Subscribe sends a tagged subscribe request for the query and waits a
// bounded interval for the acknowledgment. If none arrives the client
// still transitions to Subscribed: the harness favors throughput
// measurement over subscription-confirmation fidelity, and Acked=false
// keeps the approximation observable.
func (c *Client) Subscribe(ctx context.Context, query string) SubscribeResult {
	s := c.State()
	if s != StateConnected && s != StateSubscribed {
		return SubscribeResult{}
	}
	c.casState(StateConnected, StateSubscribing)

	id := c.nextRequestID.Add(1)
	ch := c.registerPending(id)

	frame := clientFrame{Type: FrameSubscribe, RequestID: id, Queries: []string{query}}
	if err := c.writeFrame(frame); err != nil {
		c.unregisterPending(id)
		c.setState(StateError)
		c.log.WithError(err).Warn("subscribe write failed")
		return SubscribeResult{}
	}

	c.subsMu.Lock()
	c.subscriptions[query] = time.Now()
	c.subsMu.Unlock()

	acked := false
	wait := time.NewTimer(c.cfg.SubscribeWait)
	defer wait.Stop()
	select {
	case <-ch:
		acked = true
	case <-wait.C:
	case <-ctx.Done():
	}
	if !acked {
		c.unregisterPending(id)
	}

	c.casState(StateSubscribing, StateSubscribed)
	return SubscribeResult{Success: true, SubscriptionID: id, Acked: acked}
}

// CallReducer invokes a reducer over the persistent channel and waits
// for the matching transaction_update. Responses are matched by request
// id, so out-of-order completion across calls is tolerated.
func (c *Client) CallReducer(ctx context.Context, reducer string, args []any) CallResult {
	s := c.State()
	if s != StateConnected && s != StateSubscribed {
		return CallResult{Kind: metrics.ErrKindConnection}
	}

	id := c.nextRequestID.Add(1)
	ch := c.registerPending(id)

	frame := clientFrame{Type: FrameCall, RequestID: id, Reducer: reducer, Args: args}
	if err := c.writeFrame(frame); err != nil {
		c.unregisterPending(id)
		c.setState(StateError)
		c.log.WithError(err).WithField("reducer", reducer).Warn("call write failed")
		return CallResult{RequestID: id, Kind: metrics.ErrKindConnection}
	}

	timeout := time.NewTimer(c.cfg.RequestTimeout)
	defer timeout.Stop()
	select {
	case resp := <-ch:
		if resp.Committed() {
			return CallResult{Success: true, RequestID: id}
		}
		return CallResult{RequestID: id, Kind: metrics.ErrKindValidation}
	case <-timeout.C:
		c.unregisterPending(id)
		return CallResult{RequestID: id, Kind: metrics.ErrKindTimeout}
	case <-ctx.Done():
		c.unregisterPending(id)
		return CallResult{RequestID: id, Kind: metrics.ErrKindTimeout}
	}
}

// Close tears the connection down. It is idempotent, succeeds from any
// state, and always leaves the client Disconnected.
func (c *Client) Close() {
	c.setState(StateClosing)

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.mu.Unlock()

	if conn != nil {
		deadline := time.Now().Add(time.Second)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}

	// Abandon in-flight waiters; they resolve through their own timeouts.
	c.pendingMu.Lock()
	c.pending = make(map[uint64]chan ServerFrame)
	c.pendingMu.Unlock()

	c.subsMu.Lock()
	c.subscriptions = make(map[string]time.Time)
	c.subsMu.Unlock()

	c.setState(StateDisconnected)
	c.log.Debug("closed")
}

func (c *Client) writeFrame(frame clientFrame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrConnection
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(frame)
}

func (c *Client) registerPending(id uint64) chan ServerFrame {
	ch := make(chan ServerFrame, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	return ch
}

func (c *Client) unregisterPending(id uint64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// resolvePending hands a response frame to its waiter. Request ids that
// already completed sit in a bounded LRU so a late or duplicated
// response is classified as such rather than flagged as unknown.
func (c *Client) resolvePending(frame ServerFrame) {
	if frame.RequestID == 0 {
		return
	}
	c.pendingMu.Lock()
	ch, ok := c.pending[frame.RequestID]
	if ok {
		delete(c.pending, frame.RequestID)
		c.completed.Add(frame.RequestID, time.Now())
	}
	c.pendingMu.Unlock()

	if ok {
		ch <- frame
		return
	}
	if _, seen := c.completed.Get(frame.RequestID); seen {
		c.log.WithField("request_id", frame.RequestID).Debug("late response for completed request")
	} else {
		c.log.WithField("request_id", frame.RequestID).Debug("response for unknown request")
	}
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if s := c.State(); s == StateClosing || s == StateDisconnected {
				return
			}
			c.setState(StateError)
			c.log.WithError(err).Debug("read loop terminated")
			return
		}

		frame, derr := decodeServerFrame(data)
		if derr != nil {
			// Unparsable frames are dropped; protocol drift must never
			// take the connection down.
			c.registry.RecordDroppedFrame()
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame ServerFrame) {
	switch frame.Type {
	case FrameSubscriptionUpdate:
		c.registry.RecordSubscriptionUpdate(frame.Inserts, frame.Updates, frame.Deletes)
		c.resolvePending(frame)
	case FrameTransactionUpdate:
		c.registry.RecordReducerOutcome(frame.Committed())
		c.resolvePending(frame)
	case FrameIdentityToken:
		c.identity.Store(frame.Identity)
	case FramePong:
		c.lastHeartbeat.Store(time.Now().UnixNano())
	default:
		c.registry.RecordDroppedFrame()
	}
}

func (c *Client) heartbeatLoop(conn *websocket.Conn, stopCh chan struct{}) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !c.Healthy() {
				return
			}
			id := c.nextRequestID.Add(1)
			if err := c.writeFrame(clientFrame{Type: FramePing, RequestID: id}); err != nil {
				if c.State() == StateClosing || c.State() == StateDisconnected {
					return
				}
				c.setState(StateError)
				c.log.WithError(err).Debug("heartbeat write failed")
				return
			}
		}
	}
}
