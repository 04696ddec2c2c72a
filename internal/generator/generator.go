// Package generator produces the synthetic identifiers and payloads the
// workload scenarios send to the benchmark target. Generators are pure:
// they hold no connection or metrics state and are safe to share once
// constructed.
package generator

import (
	"encoding/json"
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
)

// Message is the argument set of the create_message reducer.
type Message struct {
	Sender  string
	Content string
	Channel string
}

// Event is the argument set of the create_event reducer.
type Event struct {
	Type   string
	Source string
	Data   string
}

var channels = []string{"general", "random", "benchmark", "ops", "alerts"}

var eventTypes = []string{"page_view", "click", "purchase", "signup", "error"}

// Generator produces synthetic workload data. A zero seed produces
// random data; a fixed seed produces a deterministic stream for tests.
type Generator struct {
	faker *gofakeit.Faker
}

// New creates a randomly seeded generator.
func New() *Generator {
	return &Generator{faker: gofakeit.New(0)}
}

// NewSeeded creates a deterministic generator for the given seed.
func NewSeeded(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// CounterName returns one of a small set of counter keys so increments
// contend on shared rows, mirroring the target's counter table.
func (g *Generator) CounterName() string {
	return fmt.Sprintf("counter_%d", g.faker.Number(0, 9))
}

// IncrementAmount returns a small positive counter delta.
func (g *Generator) IncrementAmount() int64 {
	return int64(g.faker.Number(1, 10))
}

// Message returns arguments for one create_message call.
func (g *Generator) Message() Message {
	return Message{
		Sender:  g.faker.Username(),
		Content: g.faker.Sentence(8),
		Channel: g.faker.RandomString(channels),
	}
}

// Event returns arguments for one create_event call. Data is a JSON
// document, matching the target's string-typed event payload column.
func (g *Generator) Event() Event {
	payload, _ := json.Marshal(map[string]any{
		"session": g.faker.UUID(),
		"value":   g.faker.Number(1, 1000),
		"label":   g.faker.Word(),
	})
	return Event{
		Type:   g.faker.RandomString(eventTypes),
		Source: g.faker.AppName(),
		Data:   string(payload),
	}
}

// SubscriptionQuery returns a query string for the given table.
func (g *Generator) SubscriptionQuery(table string) string {
	return fmt.Sprintf("SELECT * FROM %s", table)
}

// Payload returns a letter string of exactly n bytes, for sized-write
// workloads. Returns "" for n <= 0.
func (g *Generator) Payload(n int) string {
	if n <= 0 {
		return ""
	}
	return g.faker.LetterN(uint(n))
}
