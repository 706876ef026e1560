// Package transport defines the gateway's Transport abstraction
// (SPEC_FULL.md §6): an opaque, pipe-addressable message bus providing
// send(pipe, msg) / recv() → (pipe, msg). Manager emits one message type,
// SUBSCRIBE_GROUP, carrying the body Manager.SendSubscribe constructs
// (SPEC_FULL.md §4.7); the scheduler emits the other, REPORT
// (scheduler.MsgReport).
package transport

import (
	"context"

	"github.com/google/uuid"

	"github.com/fieldmesh/iiotgw/internal/node"
)

// MsgType discriminates a Message's body.
type MsgType string

// MsgSubscribeGroup is the only message type Manager emits (SPEC_FULL.md
// §6); REPORT is defined by internal/scheduler.
const MsgSubscribeGroup MsgType = "SUBSCRIBE_GROUP"

// Header is the fixed portion of every message, mirroring the teacher's
// internal/models.AgentMessage envelope shape (Type + timestamp-free
// sender/receiver here, since ordering is per-pipe not wall-clock) plus a
// correlation ID, carried the way internal/middleware's request-ID
// middleware tags every HTTP request for cross-log correlation — useful
// here to trace one REPORT or SUBSCRIBE_GROUP message across driver,
// scheduler, and transport logs.
type Header struct {
	ID       string  `json:"id"`
	Type     MsgType `json:"type"`
	Sender   string  `json:"sender"`
	Receiver string  `json:"receiver"`
}

// NewHeader builds a Header stamped with a fresh correlation ID.
func NewHeader(typ MsgType, sender, receiver string) Header {
	return Header{ID: uuid.NewString(), Type: typ, Sender: sender, Receiver: receiver}
}

// SubscribeGroupBody is the SUBSCRIBE_GROUP message body (SPEC_FULL.md
// §4.7 send_subscribe).
type SubscribeGroupBody struct {
	App    string  `json:"app"`
	Driver string  `json:"driver"`
	Group  string  `json:"group"`
	Params *string `json:"params,omitempty"`
}

// Message is a header plus a JSON-encoded type-specific body.
type Message struct {
	Header Header `json:"header"`
	Body   []byte `json:"body"`
}

// Transport is the gateway's view of the message bus. Implementations must
// be safe for concurrent Send calls; Recv is consumed by at most one
// dispatcher loop per process in this design.
type Transport interface {
	// Send delivers msg to pipe's inbox. Per SPEC_FULL.md §7, a Send
	// failure on an outbound SUBSCRIBE_GROUP message is logged and
	// swallowed by Manager — Send itself always reports the failure
	// faithfully; the policy of ignoring it lives in the caller.
	Send(pipe node.Pipe, msg Message) error
	// Recv blocks until a message arrives for any registered pipe or ctx
	// is done.
	Recv(ctx context.Context) (node.Pipe, Message, error)
	Close() error
}
