// Package events defines the messages a node exchanges with the rest of
// the process and a small in-process bus that carries them.
package events

import (
    "fmt"

    "paradis/pkg/ident"
    "paradis/pkg/packet"
)

// Event is a message published on a Bus.
type Event interface {
    Topic() string
}

// Requests handled by a node.

// SendRequest asks the node to send Packet.
type SendRequest struct{ Packet *packet.Packet }

// ConnectRequest asks the node to open a connection to Host:Port.
type ConnectRequest struct {
    Host string
    Port int
}

type JoinRequest struct{ Group ident.ID }

type LeaveRequest struct{ Group ident.ID }

// Notifications emitted by a node.

// PacketReceived carries a packet delivered to the local inbox.
type PacketReceived struct{ Packet *packet.Packet }

// SendFailed reports a request the node could not carry out.
type SendFailed struct {
    Packet *packet.Packet
    Err    error
}

const (
    TopicSend     = "send"
    TopicConnect  = "connect"
    TopicJoin     = "join"
    TopicLeave    = "leave"
    TopicReceived = "received"
    TopicFailed   = "failed"
)

func (SendRequest) Topic() string    { return TopicSend }
func (ConnectRequest) Topic() string { return TopicConnect }
func (JoinRequest) Topic() string    { return TopicJoin }
func (LeaveRequest) Topic() string   { return TopicLeave }
func (PacketReceived) Topic() string { return TopicReceived }
func (SendFailed) Topic() string     { return TopicFailed }

func (r ConnectRequest) String() string { return fmt.Sprintf("connect %s:%d", r.Host, r.Port) }

func (f SendFailed) Error() string {
    if f.Packet == nil { return "send failed: " + f.Err.Error() }
    return fmt.Sprintf("send %s failed: %v", f.Packet.ID, f.Err)
}

func (f SendFailed) Unwrap() error { return f.Err }
