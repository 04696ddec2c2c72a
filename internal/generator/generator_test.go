package generator

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterNameBounded(t *testing.T) {
	g := New()
	for i := 0; i < 50; i++ {
		name := g.CounterName()
		assert.True(t, strings.HasPrefix(name, "counter_"), "got %q", name)
	}
}

func TestIncrementAmountPositive(t *testing.T) {
	g := New()
	for i := 0; i < 50; i++ {
		amount := g.IncrementAmount()
		assert.Greater(t, amount, int64(0))
		assert.LessOrEqual(t, amount, int64(10))
	}
}

func TestMessageFieldsPopulated(t *testing.T) {
	g := New()
	msg := g.Message()
	assert.NotEmpty(t, msg.Sender)
	assert.NotEmpty(t, msg.Content)
	assert.Contains(t, channels, msg.Channel)
}

func TestEventDataIsJSON(t *testing.T) {
	g := New()
	evt := g.Event()
	assert.Contains(t, eventTypes, evt.Type)
	assert.NotEmpty(t, evt.Source)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(evt.Data), &decoded))
	assert.Contains(t, decoded, "session")
}

func TestSubscriptionQuery(t *testing.T) {
	g := New()
	assert.Equal(t, "SELECT * FROM message", g.SubscriptionQuery("message"))
}

func TestPayloadLength(t *testing.T) {
	g := New()
	assert.Len(t, g.Payload(24), 24)
	assert.Empty(t, g.Payload(0))
	assert.Empty(t, g.Payload(-1))
}

func TestSeededDeterminism(t *testing.T) {
	a := NewSeeded(42)
	b := NewSeeded(42)

	assert.Equal(t, a.Message(), b.Message())
	assert.Equal(t, a.CounterName(), b.CounterName())
	assert.Equal(t, a.Payload(16), b.Payload(16))
}
