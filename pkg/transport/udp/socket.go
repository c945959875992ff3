package udp

import (
    "net"
    "net/netip"
    "sync"
    "sync/atomic"

    "paradis/pkg/transport"
    "paradis/pkg/transport/ringbuf"
)

// Socket is one virtual connection. Reads drain the input ring filled by
// the server; writes are sent to the remote address.
type Socket struct {
    srv   *Server
    raddr netip.AddrPort
    in    *ringbuf.Buffer

    wmu       sync.Mutex
    closed    atomic.Bool
    closeOnce sync.Once
}

func newSocket(srv *Server, raddr netip.AddrPort) *Socket {
    return &Socket{srv: srv, raddr: raddr, in: ringbuf.New(srv.inputSize)}
}

func (s *Socket) Kind() transport.Kind { return transport.KindUDP }
func (s *Socket) LocalAddr() net.Addr  { return s.srv.Addr() }
func (s *Socket) RemoteAddr() net.Addr { return net.UDPAddrFromAddrPort(s.raddr) }

func (s *Socket) Read(p []byte) (int, error) { return s.in.Read(p) }

// Write sends b, split into datagrams of at most MaxDatagram bytes.
// Concurrent writes do not interleave. A closed socket sends nothing.
func (s *Socket) Write(b []byte) (int, error) {
    s.wmu.Lock()
    defer s.wmu.Unlock()
    if s.closed.Load() { return 0, transport.ErrClosed }
    if err := s.srv.writeTo(b, s.raddr); err != nil {
        if transport.IsClosed(err) { return 0, transport.ErrClosed }
        return 0, err
    }
    return len(b), nil
}

// Close unregisters the socket and fails pending reads. Later datagrams
// from the same address create a new Socket.
func (s *Socket) Close() error {
    s.srv.unregister(s)
    s.shutdown()
    return nil
}

func (s *Socket) shutdown() {
    s.closeOnce.Do(func() {
        s.closed.Store(true)
        s.in.CloseWithError(transport.ErrClosed)
    })
}
