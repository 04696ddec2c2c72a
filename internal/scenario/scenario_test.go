package scenario

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stdb-loadgen/internal/client"
	"github.com/stdb-loadgen/internal/generator"
	"github.com/stdb-loadgen/internal/metrics"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// fakeTarget serves both sides of the target surface: the websocket
// channel at /v1/database/bench/subscribe and the HTTP reducer call
// path. Reducers named "reject" get a 400.
type fakeTarget struct {
	srv       *httptest.Server
	httpCalls atomic.Int64
}

func newFakeTarget(t *testing.T) *fakeTarget {
	t.Helper()
	ft := &fakeTarget{}
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/database/bench/subscribe", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			var frame struct {
				Type      string `json:"type"`
				RequestID uint64 `json:"request_id"`
				Reducer   string `json:"reducer"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			switch frame.Type {
			case "subscribe":
				_ = conn.WriteJSON(client.ServerFrame{Type: client.FrameSubscriptionUpdate, RequestID: frame.RequestID, Inserts: 1})
			case "call":
				status := "committed"
				if frame.Reducer == "reject" {
					status = "failed"
				}
				_ = conn.WriteJSON(client.ServerFrame{Type: client.FrameTransactionUpdate, RequestID: frame.RequestID, Status: status})
			case "ping":
				_ = conn.WriteJSON(client.ServerFrame{Type: client.FramePong, RequestID: frame.RequestID})
			}
		}
	})
	mux.HandleFunc("/v1/database/bench/call/", func(w http.ResponseWriter, r *http.Request) {
		ft.httpCalls.Add(1)
		if strings.HasSuffix(r.URL.Path, "/reject") {
			http.Error(w, "bad args", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	ft.srv = httptest.NewServer(mux)
	t.Cleanup(ft.srv.Close)
	return ft
}

func (ft *fakeTarget) wsURL() string {
	return "ws" + strings.TrimPrefix(ft.srv.URL, "http") + "/v1/database/bench/subscribe"
}

func newTestEnv(t *testing.T, ft *fakeTarget, poolSize int) (*Env, *metrics.Registry) {
	t.Helper()
	reg := metrics.New()
	log := testLogger()
	factory := func() *client.Client {
		return client.New(client.Config{
			BaseURL:        ft.srv.URL,
			WSURL:          ft.wsURL(),
			Module:         "bench",
			ConnectTimeout: 2 * time.Second,
			RequestTimeout: time.Second,
			SubscribeWait:  200 * time.Millisecond,
		}, reg, log)
	}
	pool, err := client.NewPool(context.Background(), poolSize, factory, log)
	require.NoError(t, err)
	t.Cleanup(pool.CloseAll)

	return &Env{
		Pool:    pool,
		Gen:     generator.NewSeeded(42),
		Metrics: reg,
		Log:     logrus.NewEntry(log),
	}, reg
}

func singleScenarioDispatcher(t *testing.T, name string, env *Env) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(map[string]int{name: 1}, env)
	require.NoError(t, err)
	return d
}

func TestEveryScenarioSucceedsAgainstTarget(t *testing.T) {
	ft := newFakeTarget(t)
	env, reg := newTestEnv(t, ft, 2)

	before := int64(0)
	for _, name := range Names() {
		d := singleScenarioDispatcher(t, name, env)
		d.RunOnce(context.Background())
		after := reg.Transactions()
		assert.Equal(t, before+1, after, "scenario %s should record exactly one transaction", name)
		before = after
	}
	assert.Equal(t, int64(0), reg.Errors())
	assert.Equal(t, 1.0, reg.SuccessRate())
}

func TestHTTPScenarioRecordsBytesAndRecords(t *testing.T) {
	ft := newFakeTarget(t)
	env, reg := newTestEnv(t, ft, 1)

	d := singleScenarioDispatcher(t, "message_insert", env)
	d.RunOnce(context.Background())

	snap := reg.Snapshot()
	bytes, ok := snap.Lookup(metrics.MetricBytesProcessed)
	require.True(t, ok)
	assert.Greater(t, bytes.Count, int64(0))
	records, ok := snap.Lookup(metrics.MetricRecordsProcessed)
	require.True(t, ok)
	assert.Equal(t, int64(1), records.Count)
}

func TestBatchInsertRecordsOneTransactionManyRecords(t *testing.T) {
	ft := newFakeTarget(t)
	env, reg := newTestEnv(t, ft, 1)

	d := singleScenarioDispatcher(t, "batch_insert", env)
	d.RunOnce(context.Background())

	assert.Equal(t, int64(1), reg.Transactions())
	assert.GreaterOrEqual(t, ft.httpCalls.Load(), int64(3))

	snap := reg.Snapshot()
	trend, ok := snap.Lookup("batch_duration")
	require.True(t, ok)
	assert.Equal(t, int64(1), trend.Trend.Count)

	// Batch kinds do not move the bytes/records counters.
	records, ok := snap.Lookup(metrics.MetricRecordsProcessed)
	require.True(t, ok)
	assert.Equal(t, int64(0), records.Count)
}

func TestReducerWSFallsBackToHTTPWhenUnhealthy(t *testing.T) {
	ft := newFakeTarget(t)
	env, reg := newTestEnv(t, ft, 1)

	// Kill the persistent channel; the slot stays in the pool unhealthy.
	env.Pool.Get().Close()
	require.Nil(t, env.Pool.GetHealthy())

	d := singleScenarioDispatcher(t, "reducer_ws", env)
	d.RunOnce(context.Background())

	assert.Equal(t, int64(1), reg.Transactions())
	assert.Equal(t, int64(0), reg.Errors())
	assert.Equal(t, int64(1), ft.httpCalls.Load())
}

func TestDispatcherRejectsUnknownScenario(t *testing.T) {
	ft := newFakeTarget(t)
	env, _ := newTestEnv(t, ft, 1)

	_, err := NewDispatcher(map[string]int{"no_such_scenario": 10}, env)
	assert.Error(t, err)
}

func TestDispatcherRejectsAllZeroWeights(t *testing.T) {
	ft := newFakeTarget(t)
	env, _ := newTestEnv(t, ft, 1)

	_, err := NewDispatcher(map[string]int{"counter_increment": 0, "message_insert": 0}, env)
	assert.Error(t, err)
}

func TestZeroWeightScenarioNeverPicked(t *testing.T) {
	ft := newFakeTarget(t)
	env, _ := newTestEnv(t, ft, 1)

	d, err := NewDispatcher(map[string]int{
		"counter_increment": 10,
		"message_insert":    0,
	}, env)
	require.NoError(t, err)

	for i := 0; i < 1000; i++ {
		assert.Equal(t, "counter_increment", d.Pick().Name)
	}
}

func TestPickRespectsWeights(t *testing.T) {
	ft := newFakeTarget(t)
	env, _ := newTestEnv(t, ft, 1)

	d, err := NewDispatcher(map[string]int{
		"counter_increment": 90,
		"message_insert":    10,
	}, env)
	require.NoError(t, err)

	counts := map[string]int{}
	const n = 20000
	for i := 0; i < n; i++ {
		counts[d.Pick().Name]++
	}
	ratio := float64(counts["counter_increment"]) / float64(n)
	assert.InDelta(t, 0.90, ratio, 0.03)
	assert.Greater(t, counts["message_insert"], 0)
}

func TestRejectedReducerRecordsValidationError(t *testing.T) {
	ft := newFakeTarget(t)
	env, reg := newTestEnv(t, ft, 1)

	d := singleScenarioDispatcher(t, "counter_increment", env)
	// Swap the reducer call for one the target rejects with a 400.
	d.scenarios[0].Execute = func(ctx context.Context, env *Env) Outcome {
		c := env.Pool.Get()
		res := c.CallReducerHTTP(ctx, "reject", []any{"x"})
		if !res.Success {
			return Outcome{ErrKind: res.Kind, Err: res.Err}
		}
		return Outcome{OK: true, Records: 1}
	}
	d.RunOnce(context.Background())

	assert.Equal(t, int64(1), reg.Transactions())
	assert.Equal(t, int64(1), reg.ErrorCount(metrics.ErrKindValidation))
	assert.Less(t, reg.SuccessRate(), 1.0)
}

func TestNamesCoversConfiguredDefaults(t *testing.T) {
	names := Names()
	for _, want := range []string{
		"counter_increment", "message_insert", "event_append",
		"reducer_ws", "subscribe_stream", "batch_insert",
	} {
		assert.Contains(t, names, want)
	}
}
