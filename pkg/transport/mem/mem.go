// Package mem is an in-process transport. Each connection is a pair of
// ring buffers, so it behaves like a reliable stream with bounded
// buffering. It backs hub tests and embedded multi-node setups.
package mem

import (
    "context"
    "errors"
    "fmt"
    "net"
    "sync"

    "paradis/pkg/core/priocq"
    "paradis/pkg/transport"
    "paradis/pkg/transport/ringbuf"
)

// DefaultBuffer is the per-direction capacity of a connection.
const DefaultBuffer = 1 << 20

// Network is a namespace of listeners.
type Network struct {
    mu        sync.Mutex
    listeners map[string]*Listener
    seq       int
}

func NewNetwork() *Network { return &Network{listeners: make(map[string]*Listener)} }

// Listen registers a listener under name.
func (n *Network) Listen(name string) (*Listener, error) {
    n.mu.Lock()
    defer n.mu.Unlock()
    if _, ok := n.listeners[name]; ok { return nil, fmt.Errorf("mem: listener %q already exists", name) }
    l := &Listener{net: n, name: name, accept: priocq.NewDeque[transport.Conn]()}
    n.listeners[name] = l
    return l, nil
}

// Dial connects to the listener registered under name. The server side
// is queued for that listener's Accept.
func (n *Network) Dial(from, name string) (transport.Conn, error) {
    n.mu.Lock()
    l := n.listeners[name]
    n.seq++
    seq := n.seq
    n.mu.Unlock()
    if l == nil { return nil, fmt.Errorf("mem: no listener %q", name) }
    local := Addr(fmt.Sprintf("%s#%d", from, seq))
    cli, srv := Pipe(local, Addr(name))
    if !l.accept.PushBack(srv) { return nil, transport.ErrClosed }
    return cli, nil
}

// Pipe returns two connected ends.
func Pipe(a, b Addr) (*Conn, *Conn) {
    ab, ba := ringbuf.New(DefaultBuffer), ringbuf.New(DefaultBuffer)
    return &Conn{local: a, remote: b, in: ba, out: ab}, &Conn{local: b, remote: a, in: ab, out: ba}
}

// Listener queues inbound connections for Accept.
type Listener struct {
    net    *Network
    name   string
    accept *priocq.Deque[transport.Conn]
    once   sync.Once
}

func (l *Listener) Addr() net.Addr { return Addr(l.name) }

func (l *Listener) Accept(ctx context.Context) (transport.Conn, error) {
    c, err := l.accept.Pop(ctx)
    if errors.Is(err, priocq.ErrClosed) { return nil, transport.ErrClosed }
    return c, err
}

func (l *Listener) Close() error {
    l.once.Do(func() {
        l.net.mu.Lock()
        delete(l.net.listeners, l.name)
        l.net.mu.Unlock()
        l.accept.Close()
    })
    return nil
}

// Addr names an in-process endpoint.
type Addr string

func (a Addr) Network() string { return "mem" }
func (a Addr) String() string  { return string(a) }

// Conn is one end of a Pipe.
type Conn struct {
    local, remote Addr
    in, out       *ringbuf.Buffer
    wmu           sync.Mutex
}

func (c *Conn) Kind() transport.Kind   { return transport.KindMem }
func (c *Conn) LocalAddr() net.Addr    { return c.local }
func (c *Conn) RemoteAddr() net.Addr   { return c.remote }
func (c *Conn) Read(p []byte) (int, error) { return c.in.Read(p) }

// Write blocks until b is fully buffered on the other end.
func (c *Conn) Write(b []byte) (int, error) {
    c.wmu.Lock()
    defer c.wmu.Unlock()
    return c.out.Write(b)
}

// Close fails local reads and writes at once; the other end reads what
// is already buffered and then sees io.EOF.
func (c *Conn) Close() error {
    c.in.CloseWithError(transport.ErrClosed)
    c.out.Close()
    return nil
}
