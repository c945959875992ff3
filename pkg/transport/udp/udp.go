// Package udp multiplexes one UDP socket into many virtual connections,
// one per remote address.
//
// Inbound datagrams are dispatched by source address. The first datagram
// from an unknown address creates a Socket, registers it and queues it for
// Accept; the payload then lands in that Socket's input ring. Writes on a
// Socket go out through the shared UDP socket to the Socket's remote.
package udp

import (
    "context"
    "errors"
    "fmt"
    "net"
    "net/netip"
    "strconv"
    "sync"
    "sync/atomic"

    "go.uber.org/zap"

    "paradis/pkg/core/priocq"
    "paradis/pkg/transport"
)

const (
    // MaxDatagram is the largest payload sent in one datagram.
    MaxDatagram = 65507
    // DefaultInputBuffer bounds each Socket's unread input.
    DefaultInputBuffer = 1 << 20
)

// Option configures a Server.
type Option func(*Server)

// WithInputBuffer sets the per-socket input capacity in bytes.
func WithInputBuffer(n int) Option { return func(s *Server) { s.inputSize = max(n, MaxDatagram) } }

// Server owns the UDP socket and the address table.
type Server struct {
    conn      *net.UDPConn
    inputSize int

    mu      sync.Mutex
    sockets map[netip.AddrPort]*Socket
    accept  *priocq.Deque[*Socket]
    closed  bool

    done      chan struct{}
    closeOnce sync.Once
    wg        sync.WaitGroup
    dropped   atomic.Uint64
}

// Listen binds address and starts the receive loop. The server closes
// when ctx ends.
func Listen(ctx context.Context, address string, opts ...Option) (*Server, error) {
    laddr, err := net.ResolveUDPAddr("udp", address)
    if err != nil { return nil, err }
    c, err := net.ListenUDP("udp", laddr)
    if err != nil { return nil, err }
    s := &Server{
        conn:      c,
        inputSize: DefaultInputBuffer,
        sockets:   make(map[netip.AddrPort]*Socket),
        accept:    priocq.NewDeque[*Socket](),
        done:      make(chan struct{}),
    }
    for _, o := range opts {
        o(s)
    }
    s.wg.Add(1)
    go s.readLoop()
    go func() {
        select {
        case <-ctx.Done():
            _ = s.Close()
        case <-s.done:
        }
    }()
    zap.L().Info("udp server listening", zap.String("addr", c.LocalAddr().String()))
    return s, nil
}

func (s *Server) Addr() net.Addr { return s.conn.LocalAddr() }

// Accept returns the next Socket created by inbound traffic, in arrival
// order.
func (s *Server) Accept(ctx context.Context) (transport.Conn, error) {
    sock, err := s.accept.Pop(ctx)
    if errors.Is(err, priocq.ErrClosed) { return nil, transport.ErrClosed }
    if err != nil { return nil, err }
    return sock, nil
}

// Connect returns the Socket for host:port, creating it if needed. A
// Socket created here is not surfaced through Accept.
func (s *Server) Connect(host string, port int) (transport.Conn, error) {
    raddr, err := net.ResolveUDPAddr("udp", net.JoinHostPort(host, strconv.Itoa(port)))
    if err != nil { return nil, err }
    sock, _, err := s.socketFor(raddr.AddrPort())
    if err != nil { return nil, err }
    return sock, nil
}

// Len returns the number of registered sockets.
func (s *Server) Len() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.sockets)
}

// Dropped returns how many datagrams were discarded because a socket's
// input was full.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Close stops the receive loop, fails pending Accepts and closes every
// socket.
func (s *Server) Close() error {
    var err error
    s.closeOnce.Do(func() {
        close(s.done)
        s.mu.Lock()
        s.closed = true
        socks := make([]*Socket, 0, len(s.sockets))
        for _, sock := range s.sockets {
            socks = append(socks, sock)
        }
        s.sockets = make(map[netip.AddrPort]*Socket)
        s.mu.Unlock()
        s.accept.Close()
        for _, sock := range socks {
            sock.shutdown()
        }
        err = s.conn.Close()
        s.wg.Wait()
    })
    return err
}

func (s *Server) socketFor(addr netip.AddrPort) (*Socket, bool, error) {
    addr = netip.AddrPortFrom(addr.Addr().Unmap(), addr.Port())
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.closed { return nil, false, transport.ErrClosed }
    if sock := s.sockets[addr]; sock != nil { return sock, false, nil }
    sock := newSocket(s, addr)
    s.sockets[addr] = sock
    return sock, true, nil
}

func (s *Server) unregister(sock *Socket) {
    s.mu.Lock()
    if s.sockets[sock.raddr] == sock { delete(s.sockets, sock.raddr) }
    s.mu.Unlock()
}

func (s *Server) readLoop() {
    defer s.wg.Done()
    buf := make([]byte, 64*1024)
    for {
        n, from, err := s.conn.ReadFromUDPAddrPort(buf)
        if err != nil {
            select {
            case <-s.done:
                return
            default:
            }
            if transport.IsClosed(err) { return }
            zap.L().Debug("udp read failed", zap.Error(err))
            continue
        }
        sock, created, err := s.socketFor(from)
        if err != nil { return }
        if created {
            zap.L().Debug("udp socket accepted", zap.String("remote", sock.raddr.String()))
            s.accept.PushBack(sock)
        }
        if !sock.in.Offer(buf[:n]) {
            s.dropped.Add(1)
        }
    }
}

func (s *Server) writeTo(b []byte, to netip.AddrPort) error {
    for len(b) > 0 {
        k := min(len(b), MaxDatagram)
        if _, err := s.conn.WriteToUDPAddrPort(b[:k], to); err != nil {
            return fmt.Errorf("udp write to %s: %w", to, err)
        }
        b = b[k:]
    }
    return nil
}
