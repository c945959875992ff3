package transport

import (
    "context"
    "errors"
    "io"
    "net"
)

// ErrClosed is returned by operations on a closed connection or listener.
var ErrClosed = errors.New("transport: closed")

// Kind identifies the link type of a connection.
type Kind int

const (
    KindUnknown Kind = iota
    KindUDP
    KindTCP
    KindMem
)

func (k Kind) String() string {
    switch k {
    case KindUDP:
        return "udp"
    case KindTCP:
        return "tcp"
    case KindMem:
        return "mem"
    default:
        return "unknown"
    }
}

// Conn is a duplex byte stream to one remote endpoint. Each Write call is
// delivered as a unit or not at all; Read blocks until data arrives or the
// connection closes.
type Conn interface {
    io.ReadWriteCloser
    Kind() Kind
    LocalAddr() net.Addr
    RemoteAddr() net.Addr
}

// Listener surfaces inbound connections.
type Listener interface {
    // Accept blocks until a connection is available, ctx is done or the
    // listener is closed.
    Accept(ctx context.Context) (Conn, error)
    Addr() net.Addr
    Close() error
}

// Dialer opens outbound connections without waiting for inbound traffic.
type Dialer interface {
    Connect(host string, port int) (Conn, error)
}

// IsClosed reports whether err means the stream is gone for good.
func IsClosed(err error) bool {
    return errors.Is(err, ErrClosed) || errors.Is(err, io.EOF) ||
        errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) ||
        errors.Is(err, io.ErrClosedPipe)
}
