package node

import (
    "context"
    "encoding/json"
    "net"
    "net/http"
    "net/http/httptest"
    "strings"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "paradis/pkg/config"
    "paradis/pkg/events"
    "paradis/pkg/hub"
    "paradis/pkg/ident"
    "paradis/pkg/peers"
)

func testConfig(t *testing.T) *config.Config {
    t.Helper()
    cfg := config.Default()
    cfg.Node.Listen = "127.0.0.1:0"
    cfg.Node.DataDir = t.TempDir()
    cfg.Recent.QuietMS = 20
    cfg.Hub.RetryDelayMS = 10
    return cfg
}

func newNode(t *testing.T, cfg *config.Config) *Node {
    t.Helper()
    n, err := New(cfg)
    require.NoError(t, err)
    return n
}

// start runs n until the test ends and returns a function that stops it
// and waits for Run to return.
func start(t *testing.T, n *Node) func() {
    t.Helper()
    ctx, cancel := context.WithCancel(context.Background())
    errc := make(chan error, 1)
    go func() { errc <- n.Run(ctx) }()
    var stopped bool
    stop := func() {
        if stopped { return }
        stopped = true
        cancel()
        select {
        case err := <-errc:
            assert.NoError(t, err)
        case <-time.After(5 * time.Second):
            t.Error("Run did not return")
        }
    }
    t.Cleanup(stop)
    return stop
}

func port(n *Node) int { return n.Addr().(*net.UDPAddr).Port }

func bound(n *Node, want int) func() bool {
    return func() bool {
        links := n.Hub().Links()
        if len(links) != want { return false }
        for _, l := range links {
            if !l.Bound { return false }
        }
        return true
    }
}

func connect(t *testing.T, a, b *Node) {
    t.Helper()
    require.NoError(t, a.Connect("127.0.0.1", port(b)))
    require.Eventually(t, bound(a, 1), 2*time.Second, 10*time.Millisecond)
    require.Eventually(t, bound(b, 1), 2*time.Second, 10*time.Millisecond)
}

func next(t *testing.T, s *events.Subscription) events.Event {
    t.Helper()
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    ev, err := s.Next(ctx)
    require.NoError(t, err)
    return ev
}

func TestNodesExchangeOverUDP(t *testing.T) {
    a, b := newNode(t, testConfig(t)), newNode(t, testConfig(t))
    start(t, a)
    stopB := start(t, b)
    received := b.Bus().Subscribe(events.TopicReceived)
    connect(t, a, b)

    p := a.Factory().Flood("greet", []byte("hello"))
    a.Bus().Publish(events.SendRequest{Packet: p})

    ev := next(t, received)
    got, ok := ev.(events.PacketReceived)
    require.True(t, ok, "got %#v", ev)
    assert.Equal(t, p.ID, got.Packet.ID)
    assert.Equal(t, "greet", got.Packet.MessageType)
    assert.Equal(t, a.ID(), got.Packet.Cast.Sender())
    assert.Equal(t, int16(1), got.Packet.Age)

    require.Eventually(t, func() bool {
        r := b.Recent()
        return len(r) == 1 && r[0] == a.Addr().String()
    }, time.Second, 10*time.Millisecond)

    stopB()
    saved, err := peers.Load(b.cfg.Recent.Path(b.cfg.Node.DataDir))
    require.NoError(t, err)
    assert.Equal(t, []string{a.Addr().String()}, saved)
}

func TestJoinLeaveAnnouncements(t *testing.T) {
    a, b := newNode(t, testConfig(t)), newNode(t, testConfig(t))
    start(t, a)
    start(t, b)
    connect(t, a, b)

    group := ident.NewGenerator("group").New()
    b.Bus().Publish(events.JoinRequest{Group: group})
    require.Eventually(t, func() bool {
        m := a.Members(group)
        return len(m) == 1 && m[0] == b.ID()
    }, 2*time.Second, 10*time.Millisecond)
    assert.Equal(t, []ident.ID{b.ID()}, b.Members(group))

    // Fixed-group packets addressed to the group now reach b.
    received := b.Bus().Subscribe(events.TopicReceived)
    require.NoError(t, a.Send(a.Factory().Group([]ident.ID{group}, "work", nil)))
    ev := next(t, received)
    assert.Equal(t, "work", ev.(events.PacketReceived).Packet.MessageType)

    require.NoError(t, b.Leave(group))
    require.Eventually(t, func() bool { return len(a.Members(group)) == 0 }, 2*time.Second, 10*time.Millisecond)
    assert.Empty(t, b.Members(group))
}

func TestFailedRequestIsReported(t *testing.T) {
    a := newNode(t, testConfig(t))
    start(t, a)
    failed := a.Bus().Subscribe(events.TopicFailed)
    a.Bus().Publish(events.SendRequest{})
    a.Bus().Publish(events.ConnectRequest{Host: "127.0.0.1", Port: -1})

    for i := 0; i < 2; i++ {
        ev := next(t, failed)
        f, ok := ev.(events.SendFailed)
        require.True(t, ok)
        assert.Error(t, f.Err)
    }
}

func TestRequestsBeforeRunAreServed(t *testing.T) {
    a := newNode(t, testConfig(t))
    failed := a.Bus().Subscribe(events.TopicFailed)
    a.Bus().Publish(events.SendRequest{})
    start(t, a)

    ev := next(t, failed)
    f, ok := ev.(events.SendFailed)
    require.True(t, ok, "got %#v", ev)
    assert.Error(t, f.Err)
}

func TestCloseEndsRun(t *testing.T) {
    a := newNode(t, testConfig(t))
    errc := make(chan error, 1)
    go func() { errc <- a.Run(context.Background()) }()
    time.Sleep(20 * time.Millisecond)

    require.NoError(t, a.Close())
    select {
    case err := <-errc:
        assert.NoError(t, err)
    case <-time.After(5 * time.Second):
        t.Fatal("Run did not return after Close")
    }
    assert.ErrorIs(t, a.Send(a.Factory().Flood("late", nil)), hub.ErrClosed)
}

func TestBootstrapFromRecentPeers(t *testing.T) {
    b := newNode(t, testConfig(t))
    start(t, b)

    cfg := testConfig(t)
    require.NoError(t, peers.Save(cfg.Recent.Path(cfg.Node.DataDir), []string{b.Addr().String()}))
    a := newNode(t, cfg)
    assert.Equal(t, []string{b.Addr().String()}, a.Recent())
    start(t, a)
    require.Eventually(t, bound(b, 1), 2*time.Second, 10*time.Millisecond)
    require.Eventually(t, bound(a, 1), 2*time.Second, 10*time.Millisecond)
}

func TestAdminHandler(t *testing.T) {
    a, b := newNode(t, testConfig(t)), newNode(t, testConfig(t))
    start(t, a)
    start(t, b)
    connect(t, a, b)
    h := a.Handler()

    rec := httptest.NewRecorder()
    h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/peers", nil))
    require.Equal(t, http.StatusOK, rec.Code)
    var info PeersInfo
    require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
    assert.Equal(t, a.ID(), info.ID)
    require.Len(t, info.Links, 1)
    assert.Equal(t, "udp", info.Links[0].Kind)
    assert.Equal(t, b.ID().String(), info.Links[0].Peer)

    rec = httptest.NewRecorder()
    h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
    require.Equal(t, http.StatusOK, rec.Code)
    assert.True(t, strings.Contains(rec.Body.String(), "paradis_hub_links 1"), rec.Body.String())

    rec = httptest.NewRecorder()
    h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/groups/nope/members", nil))
    assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDefaultPrincipalName(t *testing.T) {
    cfg := testConfig(t)
    cfg.Recent.File = ""
    n := newNode(t, cfg)
    defer n.Close()
    assert.True(t, strings.HasPrefix(n.gen.Principal(), "node-"), n.gen.Principal())
    assert.Equal(t, n.ID(), n.Factory().Sender())
    assert.Empty(t, n.Recent())
}

func TestTCPLink(t *testing.T) {
    cfgB := testConfig(t)
    cfgB.Node.TCPListen = "127.0.0.1:0"
    b := newNode(t, cfgB)
    start(t, b)
    received := b.Bus().Subscribe(events.TopicReceived)

    cfgA := testConfig(t)
    cfgA.Node.Bootstrap = []string{config.TCPScheme + b.TCPAddr().String()}
    a := newNode(t, cfgA)
    assert.Nil(t, a.TCPAddr())
    start(t, a)
    require.Eventually(t, bound(a, 1), 2*time.Second, 10*time.Millisecond)
    require.Eventually(t, bound(b, 1), 2*time.Second, 10*time.Millisecond)
    assert.Equal(t, "tcp", b.Hub().Links()[0].Conn.Kind().String())

    require.NoError(t, a.Send(a.Factory().To(b.ID(), "dm", []byte("over tcp"))))
    ev := next(t, received)
    assert.Equal(t, "over tcp", string(ev.(events.PacketReceived).Packet.Message))
    assert.Empty(t, b.Recent(), "only UDP peers are remembered")
}
