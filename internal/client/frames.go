package client

import (
	"encoding/json"
	"fmt"
)

// FrameType tags frames on the persistent channel.
type FrameType string

const (
	// Client -> server.
	FrameSubscribe FrameType = "subscribe"
	FrameCall      FrameType = "call"
	FramePing      FrameType = "ping"

	// Server -> client.
	FrameSubscriptionUpdate FrameType = "subscription_update"
	FrameTransactionUpdate  FrameType = "transaction_update"
	FrameIdentityToken      FrameType = "identity_token"
	FramePong               FrameType = "pong"

	// FrameUnrecognized marks a decodable frame whose type tag is not
	// part of the protocol. Kept as an explicit variant so dispatch and
	// tests can observe drift instead of silently losing it.
	FrameUnrecognized FrameType = "unrecognized"
)

// clientFrame is a client -> server message.
type clientFrame struct {
	Type      FrameType `json:"type"`
	RequestID uint64    `json:"request_id"`
	Queries   []string  `json:"queries,omitempty"`
	Reducer   string    `json:"reducer,omitempty"`
	Args      []any     `json:"args,omitempty"`
}

// ServerFrame is the decoded tagged union of every server -> client
// message. Only the fields matching Type are populated.
type ServerFrame struct {
	Type      FrameType `json:"type"`
	RequestID uint64    `json:"request_id,omitempty"`

	// subscription_update
	Inserts int64 `json:"inserts,omitempty"`
	Updates int64 `json:"updates,omitempty"`
	Deletes int64 `json:"deletes,omitempty"`

	// transaction_update
	Status  string `json:"status,omitempty"`
	Message string `json:"message,omitempty"`

	// identity_token
	Identity string `json:"identity,omitempty"`
	Token    string `json:"token,omitempty"`
}

// Committed reports whether a transaction_update carried a committed
// reducer outcome.
func (f ServerFrame) Committed() bool {
	return f.Type == FrameTransactionUpdate && f.Status == "committed"
}

// decodeServerFrame parses one inbound message. Unknown type tags map to
// FrameUnrecognized without error; only unparsable payloads fail, and the
// caller treats that as a droppable decode error, never a fatal one.
func decodeServerFrame(data []byte) (ServerFrame, error) {
	var frame ServerFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return ServerFrame{}, fmt.Errorf("decode frame: %w", err)
	}
	switch frame.Type {
	case FrameSubscriptionUpdate, FrameTransactionUpdate, FrameIdentityToken, FramePong:
		return frame, nil
	default:
		frame.Type = FrameUnrecognized
		return frame, nil
	}
}
