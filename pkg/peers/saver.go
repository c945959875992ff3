package peers

import (
    "context"
    "errors"
    "fmt"
    "io/fs"
    "os"
    "path/filepath"
    "time"

    "github.com/fxamacker/cbor/v2"
    "go.uber.org/zap"
)

const (
    DefaultQuiet        = 2 * time.Second
    DefaultMaxDeferrals = 5
)

// file is the on-disk record.
type file struct {
    Version int      `cbor:"1,keyasint"`
    SavedMS int64    `cbor:"2,keyasint"`
    Peers   []string `cbor:"3,keyasint"`
}

const fileVersion = 1

// SaverOptions configures a Saver.
type SaverOptions struct {
    Path string
    // Quiet is how long the list must stay unchanged before it is written.
    Quiet time.Duration
    // MaxDeferrals bounds how often a pending write is pushed back by new
    // changes before it is forced.
    MaxDeferrals int
    // OnSave is called after every successful write.
    OnSave func(peers int)
}

// Saver persists a Recent list, coalescing bursts of changes.
type Saver struct {
    recent *Recent
    opts   SaverOptions
    kick   chan struct{}
    saved  uint64
}

func NewSaver(recent *Recent, opts SaverOptions) *Saver {
    if opts.Quiet <= 0 { opts.Quiet = DefaultQuiet }
    if opts.MaxDeferrals < 0 { opts.MaxDeferrals = 0 }
    return &Saver{recent: recent, opts: opts, kick: make(chan struct{}, 1), saved: recent.Version()}
}

// Notify marks the list dirty. It never blocks.
func (s *Saver) Notify() {
    select {
    case s.kick <- struct{}{}:
    default:
    }
}

// Run writes the list after each quiet period until ctx ends, then
// writes any pending change once more.
func (s *Saver) Run(ctx context.Context) error {
    for {
        select {
        case <-ctx.Done():
            return s.flush()
        case <-s.kick:
        }
        timer := time.NewTimer(s.opts.Quiet)
        deferrals := 0
    wait:
        for {
            select {
            case <-ctx.Done():
                timer.Stop()
                return s.flush()
            case <-s.kick:
                if deferrals >= s.opts.MaxDeferrals { continue }
                deferrals++
                if !timer.Stop() { <-timer.C }
                timer.Reset(s.opts.Quiet)
            case <-timer.C:
                break wait
            }
        }
        if err := s.flush(); err != nil {
            zap.L().Warn("peers save failed", zap.String("path", s.opts.Path), zap.Error(err))
        }
    }
}

// flush writes the list if it changed since the last write.
func (s *Saver) flush() error {
    addrs, version := s.recent.snapshot()
    if version == s.saved { return nil }
    if err := Save(s.opts.Path, addrs); err != nil { return err }
    s.saved = version
    zap.L().Debug("peers saved", zap.String("path", s.opts.Path), zap.Int("peers", len(addrs)))
    if s.opts.OnSave != nil { s.opts.OnSave(len(addrs)) }
    return nil
}

// Save writes addrs to path atomically.
func Save(path string, addrs []string) error {
    if path == "" { return errors.New("peers: empty path") }
    b, err := cbor.Marshal(file{Version: fileVersion, SavedMS: time.Now().UnixMilli(), Peers: addrs})
    if err != nil { return fmt.Errorf("peers: encode: %w", err) }
    dir := filepath.Dir(path)
    if err := os.MkdirAll(dir, 0o755); err != nil { return fmt.Errorf("peers: %w", err) }
    tmp, err := os.CreateTemp(dir, ".peers-*")
    if err != nil { return fmt.Errorf("peers: %w", err) }
    defer os.Remove(tmp.Name())
    if _, err := tmp.Write(b); err != nil {
        _ = tmp.Close()
        return fmt.Errorf("peers: write: %w", err)
    }
    if err := tmp.Close(); err != nil { return fmt.Errorf("peers: write: %w", err) }
    if err := os.Rename(tmp.Name(), path); err != nil { return fmt.Errorf("peers: %w", err) }
    return nil
}

// Load reads addresses written by Save. A missing file yields no
// addresses and no error.
func Load(path string) ([]string, error) {
    b, err := os.ReadFile(path)
    if errors.Is(err, fs.ErrNotExist) { return nil, nil }
    if err != nil { return nil, fmt.Errorf("peers: %w", err) }
    var f file
    if err := cbor.Unmarshal(b, &f); err != nil { return nil, fmt.Errorf("peers: decode %s: %w", path, err) }
    if f.Version != fileVersion { return nil, fmt.Errorf("peers: %s has unsupported version %d", path, f.Version) }
    return f.Peers, nil
}
