// Package tcp carries hub connections over TCP streams. Packets are
// self-delimiting, so the stream needs no extra framing.
package tcp

import (
    "bufio"
    "context"
    "errors"
    "net"
    "sync"

    "go.uber.org/zap"

    "paradis/pkg/core/priocq"
    "paradis/pkg/transport"
)

// Listen accepts TCP connections on address until ctx ends or the
// listener is closed.
func Listen(ctx context.Context, address string) (*Listener, error) {
    l, err := net.Listen("tcp", address)
    if err != nil { return nil, err }
    tl := &Listener{l: l, accept: priocq.NewDeque[transport.Conn](), done: make(chan struct{})}
    go tl.acceptLoop()
    go func() {
        select {
        case <-ctx.Done():
            _ = tl.Close()
        case <-tl.done:
        }
    }()
    zap.L().Info("tcp listener started", zap.String("addr", l.Addr().String()))
    return tl, nil
}

// Dial opens a TCP connection to address.
func Dial(ctx context.Context, address string) (transport.Conn, error) {
    var d net.Dialer
    c, err := d.DialContext(ctx, "tcp", address)
    if err != nil { return nil, err }
    return newConn(c), nil
}

// Listener queues accepted connections in arrival order.
type Listener struct {
    l      net.Listener
    accept *priocq.Deque[transport.Conn]
    done   chan struct{}
    once   sync.Once
}

func (l *Listener) Addr() net.Addr { return l.l.Addr() }

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
    c, err := l.accept.Pop(ctx)
    if errors.Is(err, priocq.ErrClosed) { return nil, transport.ErrClosed }
    return c, err
}

// Close stops accepting and closes connections not yet taken by Accept.
func (l *Listener) Close() error {
    var err error
    l.once.Do(func() {
        close(l.done)
        err = l.l.Close()
        l.accept.Close()
        for {
            c, ok := l.accept.TryPop()
            if !ok { break }
            _ = c.Close()
        }
    })
    return err
}

func (l *Listener) acceptLoop() {
    for {
        c, err := l.l.Accept()
        if err != nil {
            if !errors.Is(err, net.ErrClosed) { zap.L().Warn("tcp accept failed", zap.Error(err)) }
            _ = l.Close()
            return
        }
        if !l.accept.PushBack(newConn(c)) { _ = c.Close() }
    }
}

// Conn is one TCP stream. Concurrent writes do not interleave.
type Conn struct {
    c   net.Conn
    wmu sync.Mutex
    bw  *bufio.Writer
}

func newConn(c net.Conn) *Conn { return &Conn{c: c, bw: bufio.NewWriter(c)} }

func (c *Conn) Kind() transport.Kind   { return transport.KindTCP }
func (c *Conn) LocalAddr() net.Addr    { return c.c.LocalAddr() }
func (c *Conn) RemoteAddr() net.Addr   { return c.c.RemoteAddr() }
func (c *Conn) Read(p []byte) (int, error) { return c.c.Read(p) }

func (c *Conn) Write(b []byte) (int, error) {
    c.wmu.Lock()
    defer c.wmu.Unlock()
    n, err := c.bw.Write(b)
    if err == nil { err = c.bw.Flush() }
    if err != nil && transport.IsClosed(err) { err = transport.ErrClosed }
    return n, err
}

func (c *Conn) Close() error { return c.c.Close() }
