package udp

import (
    "bytes"
    "context"
    "errors"
    "io"
    "net"
    "testing"
    "time"

    "github.com/stretchr/testify/require"

    "paradis/pkg/transport"
)

func listen(t *testing.T, opts ...Option) *Server {
    t.Helper()
    s, err := Listen(context.Background(), "127.0.0.1:0", opts...)
    require.NoError(t, err)
    t.Cleanup(func() { _ = s.Close() })
    return s
}

func port(s *Server) int { return s.Addr().(*net.UDPAddr).Port }

func acceptWithin(t *testing.T, s *Server) transport.Conn {
    t.Helper()
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    c, err := s.Accept(ctx)
    require.NoError(t, err)
    return c
}

func TestConnectAcceptDuplex(t *testing.T) {
    a, b := listen(t), listen(t)

    ca, err := a.Connect("127.0.0.1", port(b))
    require.NoError(t, err)
    again, err := a.Connect("127.0.0.1", port(b))
    require.NoError(t, err)
    require.Same(t, ca, again, "Connect must return the existing socket")

    _, err = ca.Write([]byte("hello"))
    require.NoError(t, err)
    cb := acceptWithin(t, b)
    require.Equal(t, ca.LocalAddr().String(), cb.RemoteAddr().String())

    got := make([]byte, 5)
    _, err = io.ReadFull(cb, got)
    require.NoError(t, err)
    require.Equal(t, "hello", string(got))

    _, err = cb.Write([]byte("world"))
    require.NoError(t, err)
    _, err = io.ReadFull(ca, got)
    require.NoError(t, err)
    require.Equal(t, "world", string(got))

    // The connected socket on a was never surfaced through Accept.
    ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
    defer cancel()
    _, err = a.Accept(ctx)
    require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLargeWriteIsChunked(t *testing.T) {
    a, b := listen(t), listen(t, WithInputBuffer(4<<20))
    ca, err := a.Connect("127.0.0.1", port(b))
    require.NoError(t, err)
    msg := bytes.Repeat([]byte{0x5A}, 2*MaxDatagram+17)
    _, err = ca.Write(msg)
    require.NoError(t, err)
    cb := acceptWithin(t, b)
    got := make([]byte, len(msg))
    _, err = io.ReadFull(cb, got)
    require.NoError(t, err)
    require.True(t, bytes.Equal(msg, got))
}

func TestAcceptOrderIsFIFO(t *testing.T) {
    srv := listen(t)
    var clients []*Server
    for i := 0; i < 3; i++ {
        c := listen(t)
        clients = append(clients, c)
        conn, err := c.Connect("127.0.0.1", port(srv))
        require.NoError(t, err)
        _, err = conn.Write([]byte{byte(i)})
        require.NoError(t, err)
        require.Eventually(t, func() bool { return srv.Len() == i+1 }, time.Second, 5*time.Millisecond)
    }
    for i := 0; i < 3; i++ {
        c := acceptWithin(t, srv)
        require.Equal(t, clients[i].Addr().String(), c.RemoteAddr().String())
    }
}

func TestCloseUnblocksAcceptAndReads(t *testing.T) {
    a, b := listen(t), listen(t)
    ca, err := a.Connect("127.0.0.1", port(b))
    require.NoError(t, err)

    acceptErr := make(chan error, 1)
    go func() {
        _, err := a.Accept(context.Background())
        acceptErr <- err
    }()
    readErr := make(chan error, 1)
    go func() {
        _, err := ca.Read(make([]byte, 1))
        readErr <- err
    }()
    time.Sleep(20 * time.Millisecond)
    require.NoError(t, a.Close())

    for _, ch := range []chan error{acceptErr, readErr} {
        select {
        case err := <-ch:
            require.True(t, errors.Is(err, transport.ErrClosed), "err = %v", err)
        case <-time.After(2 * time.Second):
            t.Fatal("operation still blocked after Close")
        }
    }
    _, err = a.Connect("127.0.0.1", port(b))
    require.ErrorIs(t, err, transport.ErrClosed)
}

func TestSocketCloseRecreatesOnTraffic(t *testing.T) {
    a, b := listen(t), listen(t)
    ca, err := a.Connect("127.0.0.1", port(b))
    require.NoError(t, err)
    _, err = ca.Write([]byte("1"))
    require.NoError(t, err)
    first := acceptWithin(t, b)
    require.NoError(t, first.Close())
    require.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, 5*time.Millisecond)

    _, err = ca.Write([]byte("2"))
    require.NoError(t, err)
    second := acceptWithin(t, b)
    require.NotSame(t, first, second)
    got := make([]byte, 1)
    _, err = io.ReadFull(second, got)
    require.NoError(t, err)
    require.Equal(t, "2", string(got))
}

func TestClosedSocketRefusesWrites(t *testing.T) {
    a, b := listen(t), listen(t)
    ca, err := a.Connect("127.0.0.1", port(b))
    require.NoError(t, err)
    require.NoError(t, ca.Close())

    _, err = ca.Write([]byte("late"))
    require.ErrorIs(t, err, transport.ErrClosed)
    ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
    defer cancel()
    _, err = b.Accept(ctx)
    require.ErrorIs(t, err, context.DeadlineExceeded, "nothing may reach b")

    fresh, err := a.Connect("127.0.0.1", port(b))
    require.NoError(t, err)
    require.NotSame(t, ca, fresh)
    _, err = fresh.Write([]byte("ok"))
    require.NoError(t, err)
    acceptWithin(t, b)
}

func TestFullInputDropsDatagram(t *testing.T) {
    a, b := listen(t), listen(t, WithInputBuffer(0))
    ca, err := a.Connect("127.0.0.1", port(b))
    require.NoError(t, err)
    big := make([]byte, MaxDatagram)
    for i := 0; i < 3; i++ {
        _, err = ca.Write(big)
        require.NoError(t, err)
    }
    require.Eventually(t, func() bool { return b.Dropped() >= 1 }, 2*time.Second, 5*time.Millisecond)
}
