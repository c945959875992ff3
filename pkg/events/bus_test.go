package events

import (
    "context"
    "errors"
    "testing"
    "time"

    "paradis/pkg/ident"
)

func TestPublishFansOutByTopic(t *testing.T) {
    b := NewLocal()
    defer b.Close()
    all := b.Subscribe()
    joins := b.Subscribe(TopicJoin, TopicLeave)

    g := ident.ID{Hi: 1, Lo: 2}
    b.Publish(ConnectRequest{Host: "h", Port: 1})
    b.Publish(JoinRequest{Group: g})
    b.Publish(LeaveRequest{Group: g})

    if all.Len() != 3 { t.Fatalf("all has %d events, want 3", all.Len()) }
    if joins.Len() != 2 { t.Fatalf("joins has %d events, want 2", joins.Len()) }

    ctx := context.Background()
    ev, err := joins.Next(ctx)
    if err != nil { t.Fatalf("next: %v", err) }
    if j, ok := ev.(JoinRequest); !ok || j.Group != g { t.Fatalf("got %#v", ev) }
    ev, _ = all.Next(ctx)
    if c, ok := ev.(ConnectRequest); !ok || c.String() != "connect h:1" { t.Fatalf("got %#v", ev) }
}

func TestNextBlocksUntilPublish(t *testing.T) {
    b := NewLocal()
    defer b.Close()
    s := b.Subscribe(TopicFailed)
    got := make(chan Event, 1)
    go func() {
        ev, _ := s.Next(context.Background())
        got <- ev
    }()
    time.Sleep(10 * time.Millisecond)
    cause := errors.New("boom")
    b.Publish(SendFailed{Err: cause})
    select {
    case ev := <-got:
        f, ok := ev.(SendFailed)
        if !ok || !errors.Is(f, cause) { t.Fatalf("got %#v", ev) }
    case <-time.After(time.Second):
        t.Fatal("Next did not return")
    }
}

func TestCloseEndsSubscriptions(t *testing.T) {
    b := NewLocal()
    s := b.Subscribe()
    b.Publish(JoinRequest{})
    b.Close()
    if _, err := s.Next(context.Background()); err != nil { t.Fatalf("queued event lost: %v", err) }
    if _, err := s.Next(context.Background()); !errors.Is(err, ErrClosed) { t.Fatalf("err = %v", err) }

    late := b.Subscribe()
    if _, err := late.Next(context.Background()); !errors.Is(err, ErrClosed) { t.Fatalf("late err = %v", err) }
}

func TestSubscriptionClose(t *testing.T) {
    b := NewLocal()
    defer b.Close()
    s := b.Subscribe()
    s.Close()
    s.Close()
    b.Publish(JoinRequest{})
    if s.Len() != 0 { t.Fatalf("closed subscription received an event") }
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
    defer cancel()
    if _, err := s.Next(ctx); !errors.Is(err, ErrClosed) { t.Fatalf("err = %v", err) }
}
