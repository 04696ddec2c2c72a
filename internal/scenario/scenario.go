// Package scenario defines the weighted workload units a virtual user
// iterates through, and the dispatcher that picks among them.
package scenario

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/stdb-loadgen/internal/client"
	"github.com/stdb-loadgen/internal/generator"
	"github.com/stdb-loadgen/internal/metrics"
)

// Env bundles the shared dependencies every scenario execution needs.
type Env struct {
	Pool    *client.Pool
	Gen     *generator.Generator
	Metrics *metrics.Registry
	Log     *logrus.Entry
}

// Outcome is what one scenario execution reports back to the
// dispatcher, which owns the single metrics record for the iteration.
type Outcome struct {
	OK      bool
	Bytes   int64
	Records int64
	ErrKind metrics.ErrorKind
	Err     error
}

// Scenario is one weighted workload unit.
type Scenario struct {
	Name    string
	Weight  int
	Kind    metrics.OpKind
	Execute func(ctx context.Context, env *Env) Outcome
}

var subscribableTables = []string{"counter", "message", "event"}

// builders maps config scenario names to their constructors. Weights
// are filled in by the dispatcher from configuration.
var builders = map[string]func() Scenario{
	"counter_increment": counterIncrement,
	"message_insert":    messageInsert,
	"event_append":      eventAppend,
	"reducer_ws":        reducerWS,
	"subscribe_stream":  subscribeStream,
	"batch_insert":      batchInsert,
}

// Names returns the scenario names known to the dispatcher.
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	return names
}

// counterIncrement calls the increment_counter reducer over HTTP.
func counterIncrement() Scenario {
	return Scenario{
		Name: "counter_increment",
		Kind: metrics.OpWrite,
		Execute: func(ctx context.Context, env *Env) Outcome {
			c := env.Pool.Get()
			if c == nil {
				return Outcome{ErrKind: metrics.ErrKindConnection, Err: client.ErrPoolEmpty}
			}
			name := env.Gen.CounterName()
			amount := env.Gen.IncrementAmount()
			res := c.CallReducerHTTP(ctx, "increment_counter", []any{name, amount})
			if !res.Success {
				return Outcome{ErrKind: res.Kind, Err: res.Err}
			}
			return Outcome{OK: true, Bytes: int64(len(name)) + 8, Records: 1}
		},
	}
}

// messageInsert inserts one synthetic chat message over HTTP.
func messageInsert() Scenario {
	return Scenario{
		Name: "message_insert",
		Kind: metrics.OpWrite,
		Execute: func(ctx context.Context, env *Env) Outcome {
			c := env.Pool.Get()
			if c == nil {
				return Outcome{ErrKind: metrics.ErrKindConnection, Err: client.ErrPoolEmpty}
			}
			msg := env.Gen.Message()
			res := c.CallReducerHTTP(ctx, "create_message", []any{msg.Sender, msg.Content, msg.Channel})
			if !res.Success {
				return Outcome{ErrKind: res.Kind, Err: res.Err}
			}
			return Outcome{
				OK:      true,
				Bytes:   int64(len(msg.Sender) + len(msg.Content) + len(msg.Channel)),
				Records: 1,
			}
		},
	}
}

// eventAppend appends one synthetic event record over HTTP.
func eventAppend() Scenario {
	return Scenario{
		Name: "event_append",
		Kind: metrics.OpWrite,
		Execute: func(ctx context.Context, env *Env) Outcome {
			c := env.Pool.Get()
			if c == nil {
				return Outcome{ErrKind: metrics.ErrKindConnection, Err: client.ErrPoolEmpty}
			}
			ev := env.Gen.Event()
			res := c.CallReducerHTTP(ctx, "create_event", []any{ev.Type, ev.Source, ev.Data})
			if !res.Success {
				return Outcome{ErrKind: res.Kind, Err: res.Err}
			}
			return Outcome{
				OK:      true,
				Bytes:   int64(len(ev.Type) + len(ev.Source) + len(ev.Data)),
				Records: 1,
			}
		},
	}
}

// reducerWS calls increment_counter over the persistent channel and
// waits for the transaction outcome. With no healthy channel in the
// pool the call falls back to the HTTP path so load keeps flowing.
func reducerWS() Scenario {
	return Scenario{
		Name: "reducer_ws",
		Kind: metrics.OpWrite,
		Execute: func(ctx context.Context, env *Env) Outcome {
			name := env.Gen.CounterName()
			amount := env.Gen.IncrementAmount()

			c := env.Pool.GetHealthy()
			if c == nil {
				fallback := env.Pool.Get()
				if fallback == nil {
					return Outcome{ErrKind: metrics.ErrKindConnection, Err: client.ErrPoolEmpty}
				}
				res := fallback.CallReducerHTTP(ctx, "increment_counter", []any{name, amount})
				if !res.Success {
					return Outcome{ErrKind: res.Kind, Err: res.Err}
				}
				return Outcome{OK: true, Bytes: int64(len(name)) + 8, Records: 1}
			}

			res := c.CallReducer(ctx, "increment_counter", []any{name, amount})
			if !res.Success {
				return Outcome{
					ErrKind: res.Kind,
					Err:     fmt.Errorf("reducer call %d not committed", res.RequestID),
				}
			}
			return Outcome{OK: true, Bytes: int64(len(name)) + 8, Records: 1}
		},
	}
}

// subscribeStream opens a table subscription on a healthy connection.
func subscribeStream() Scenario {
	return Scenario{
		Name: "subscribe_stream",
		Kind: metrics.OpRead,
		Execute: func(ctx context.Context, env *Env) Outcome {
			c := env.Pool.GetHealthy()
			if c == nil {
				return Outcome{ErrKind: metrics.ErrKindConnection, Err: client.ErrPoolEmpty}
			}
			table := subscribableTables[rand.Intn(len(subscribableTables))]
			query := env.Gen.SubscriptionQuery(table)
			res := c.Subscribe(ctx, query)
			if !res.Success {
				return Outcome{
					ErrKind: metrics.ErrKindConnection,
					Err:     fmt.Errorf("subscribe %q failed", query),
				}
			}
			return Outcome{OK: true, Bytes: int64(len(query)), Records: 1}
		},
	}
}

// batchInsert inserts several messages back to back, failing the whole
// batch on the first rejected call.
func batchInsert() Scenario {
	return Scenario{
		Name: "batch_insert",
		Kind: metrics.OpBatch,
		Execute: func(ctx context.Context, env *Env) Outcome {
			c := env.Pool.Get()
			if c == nil {
				return Outcome{ErrKind: metrics.ErrKindConnection, Err: client.ErrPoolEmpty}
			}
			n := rand.Intn(8) + 3
			var bytes int64
			for i := 0; i < n; i++ {
				msg := env.Gen.Message()
				res := c.CallReducerHTTP(ctx, "create_message", []any{msg.Sender, msg.Content, msg.Channel})
				if !res.Success {
					return Outcome{ErrKind: res.Kind, Err: res.Err}
				}
				bytes += int64(len(msg.Sender) + len(msg.Content) + len(msg.Channel))
			}
			return Outcome{OK: true, Bytes: bytes, Records: int64(n)}
		},
	}
}
