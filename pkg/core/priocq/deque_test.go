package priocq

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"
)

func TestDequeOrderWithUrgent(t *testing.T) {
    q := NewDeque[int]()
    for i := 1; i <= 40; i++ {
        q.PushBack(i)
    }
    q.Push(-1, true)
    q.Push(-2, true)
    q.Push(41, false)
    want := []int{-2, -1}
    for i := 1; i <= 41; i++ {
        want = append(want, i)
    }
    for _, w := range want {
        v, err := q.Pop(context.Background())
        if err != nil || v != w { t.Fatalf("Pop = %d, %v; want %d", v, err, w) }
    }
    if q.Len() != 0 { t.Fatalf("Len = %d", q.Len()) }
}

func TestDequePopBlocksUntilPush(t *testing.T) {
    q := NewDeque[string]()
    got := make(chan string, 1)
    go func() {
        v, _ := q.Pop(context.Background())
        got <- v
    }()
    time.Sleep(20 * time.Millisecond)
    q.PushBack("x")
    select {
    case v := <-got:
        if v != "x" { t.Fatalf("got %q", v) }
    case <-time.After(time.Second):
        t.Fatalf("Pop did not wake")
    }
}

func TestDequeCloseWakesWaiters(t *testing.T) {
    q := NewDeque[int]()
    var wg sync.WaitGroup
    errs := make(chan error, 4)
    for i := 0; i < 4; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            _, err := q.Pop(context.Background())
            errs <- err
        }()
    }
    time.Sleep(20 * time.Millisecond)
    q.Close()
    wg.Wait()
    close(errs)
    for err := range errs {
        if !errors.Is(err, ErrClosed) { t.Fatalf("err = %v", err) }
    }
    if q.PushBack(1) { t.Fatalf("push after close accepted") }
}

func TestDequeDrainsAfterClose(t *testing.T) {
    q := NewDeque[int]()
    q.PushBack(7)
    q.Close()
    if v, err := q.Pop(context.Background()); err != nil || v != 7 { t.Fatalf("Pop = %d, %v", v, err) }
    if _, err := q.Pop(context.Background()); !errors.Is(err, ErrClosed) { t.Fatalf("err = %v", err) }
}

func TestDequeContextCancel(t *testing.T) {
    q := NewDeque[int]()
    ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
    defer cancel()
    if _, err := q.Pop(ctx); !errors.Is(err, context.DeadlineExceeded) { t.Fatalf("err = %v", err) }
}

func TestDequeManyConsumers(t *testing.T) {
    q := NewDeque[int]()
    const n = 1000
    var wg sync.WaitGroup
    var mu sync.Mutex
    seen := make(map[int]bool)
    ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
    defer cancel()
    for c := 0; c < 4; c++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for {
                v, err := q.Pop(ctx)
                if err != nil { return }
                mu.Lock()
                seen[v] = true
                done := len(seen) == n
                mu.Unlock()
                if done { q.Close() }
            }
        }()
    }
    for i := 0; i < n; i++ {
        q.PushBack(i)
    }
    wg.Wait()
    if len(seen) != n { t.Fatalf("consumed %d of %d", len(seen), n) }
}
