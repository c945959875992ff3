package ringbuf

import (
    "bytes"
    "errors"
    "io"
    "testing"
    "time"
)

func TestOfferAllOrNothing(t *testing.T) {
    b := New(8)
    if !b.Offer([]byte("abcde")) { t.Fatalf("first offer refused") }
    if b.Offer([]byte("fghij")) { t.Fatalf("offer beyond capacity accepted") }
    if b.Dropped() != 1 || b.Len() != 5 { t.Fatalf("dropped=%d len=%d", b.Dropped(), b.Len()) }
    p := make([]byte, 3)
    if n, _ := b.Read(p); n != 3 || string(p) != "abc" { t.Fatalf("read %q", p[:n]) }
    if !b.Offer([]byte("fghij")) { t.Fatalf("offer after read refused") }
    out := make([]byte, 16)
    n, _ := io.ReadFull(b, out[:7])
    if string(out[:n]) != "defghij" { t.Fatalf("wrapped read %q", out[:n]) }
}

func TestWriteBlocksUntilRead(t *testing.T) {
    b := New(4)
    done := make(chan error, 1)
    msg := bytes.Repeat([]byte("xy"), 50)
    go func() {
        _, err := b.Write(msg)
        done <- err
    }()
    got := make([]byte, len(msg))
    if _, err := io.ReadFull(b, got); err != nil { t.Fatalf("read: %v", err) }
    if !bytes.Equal(got, msg) { t.Fatalf("stream corrupted") }
    if err := <-done; err != nil { t.Fatalf("write: %v", err) }
}

func TestCloseUnblocksAndDrains(t *testing.T) {
    b := New(16)
    b.Offer([]byte("hi"))
    errClosed := errors.New("closed")
    readErr := make(chan error, 1)
    go func() {
        p := make([]byte, 4)
        n, _ := b.Read(p)
        if string(p[:n]) != "hi" {
            readErr <- errors.New("lost buffered bytes")
            return
        }
        _, err := b.Read(p)
        readErr <- err
    }()
    time.Sleep(20 * time.Millisecond)
    b.CloseWithError(errClosed)
    select {
    case err := <-readErr:
        if !errors.Is(err, errClosed) { t.Fatalf("err = %v", err) }
    case <-time.After(time.Second):
        t.Fatalf("Read still blocked after close")
    }
    if _, err := b.Write([]byte("x")); !errors.Is(err, errClosed) { t.Fatalf("write err = %v", err) }
    if b.Offer([]byte("x")) { t.Fatalf("offer after close accepted") }
}
