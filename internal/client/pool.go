package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// ErrPoolEmpty is returned when pool construction fails on every slot.
var ErrPoolEmpty = errors.New("no connection in the pool could be established")

// Pool holds a fixed set of clients handed out round-robin. The size is
// fixed at construction; slots whose connect failed stay in the pool as
// unhealthy and are skipped by GetHealthy.
type Pool struct {
	clients []*Client
	cursor  atomic.Uint64
	log     *logrus.Entry
}

// Factory builds one pool slot.
type Factory func() *Client

// NewPool eagerly creates and connects size clients. Partial failure is
// tolerated: the pool is usable as long as at least one slot connected,
// with a warning logged per failed slot. Only a fully failed pool is a
// setup error.
func NewPool(ctx context.Context, size int, factory Factory, log *logrus.Logger) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be >= 1, got %d", size)
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	p := &Pool{
		clients: make([]*Client, 0, size),
		log:     log.WithField("component", "pool"),
	}

	connected := 0
	for i := 0; i < size; i++ {
		c := factory()
		if c.Connect(ctx) {
			connected++
		} else {
			p.log.WithFields(logrus.Fields{
				"slot":          i,
				"connection_id": c.ID(),
			}).Warn("pool slot failed to connect")
		}
		p.clients = append(p.clients, c)
	}

	if connected == 0 {
		p.CloseAll()
		return nil, ErrPoolEmpty
	}

	p.log.WithFields(logrus.Fields{
		"size":      size,
		"connected": connected,
	}).Info("connection pool ready")
	return p, nil
}

// Size returns the fixed pool size.
func (p *Pool) Size() int {
	return len(p.clients)
}

// Get returns the next client round-robin in O(1). Over any N
// consecutive calls on a pool of size N, every slot is returned exactly
// once; the monotonic cursor wraps safely on overflow.
func (p *Pool) Get() *Client {
	if len(p.clients) == 0 {
		return nil
	}
	n := p.cursor.Add(1) - 1
	return p.clients[n%uint64(len(p.clients))]
}

// GetHealthy scans up to Size candidates round-robin for a client in a
// Connected or Subscribed state. It returns nil when the pool is
// exhausted; callers must treat nil as backpressure, not retry forever.
func (p *Pool) GetHealthy() *Client {
	for i := 0; i < len(p.clients); i++ {
		if c := p.Get(); c != nil && c.Healthy() {
			return c
		}
	}
	return nil
}

// CloseAll closes every client and empties the pool. Used at teardown.
func (p *Pool) CloseAll() {
	for _, c := range p.clients {
		c.Close()
	}
	p.clients = nil
	p.log.Debug("connection pool closed")
}
