package observability

import (
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/testutil"
    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"

    "paradis/pkg/config"
    "paradis/pkg/memkv"
)

func TestSetupLoggerWritesFile(t *testing.T) {
    path := filepath.Join(t.TempDir(), "logs", "node.log")
    cfg := config.Default().Log
    cfg.Outputs = []string{path}
    cfg.Format = "json"
    cfg.Development = false
    logger, err := SetupLogger(cfg)
    if err != nil { t.Fatalf("setup: %v", err) }
    defer zap.ReplaceGlobals(zap.NewNop())
    zap.L().Info("hello", zap.String("k", "v"))
    _ = logger.Sync()
    b, err := os.ReadFile(path)
    if err != nil { t.Fatalf("read: %v", err) }
    if !strings.Contains(string(b), `"k":"v"`) { t.Fatalf("log = %s", b) }
}

func TestParseLevel(t *testing.T) {
    cases := map[string]zapcore.Level{"debug": zapcore.DebugLevel, "WARNING": zapcore.WarnLevel, "": zapcore.InfoLevel, "bogus": zapcore.InfoLevel}
    for in, want := range cases {
        if got := parseLevel(in); got != want { t.Fatalf("parseLevel(%q) = %v", in, got) }
    }
}

func TestMetricsRegisterOnGivenRegistry(t *testing.T) {
    reg := prometheus.NewRegistry()
    m := NewHubMetrics(reg, func() memkv.Stats { return memkv.Stats{Keys: 5, Expired: 2, Refused: 7} })
    m.Sent.Inc()
    m.Links.Set(3)
    if got := testutil.ToFloat64(m.Sent); got != 1 { t.Fatalf("sent = %v", got) }
    if got := testutil.ToFloat64(m.SeenKeys); got != 5 { t.Fatalf("seen keys = %v", got) }
    if got := testutil.ToFloat64(m.SeenExpired); got != 2 { t.Fatalf("seen expired = %v", got) }
    if got := testutil.ToFloat64(m.SeenRefused); got != 7 { t.Fatalf("seen refused = %v", got) }
    n, err := testutil.GatherAndCount(reg)
    if err != nil || n != 11 { t.Fatalf("gathered %d metrics: %v", n, err) }

    // Independent hubs must not collide.
    NewHubMetrics(nil, nil)
    NewHubMetrics(nil, nil)

    nm := NewNodeMetrics(reg, func() float64 { return 4 })
    if got := testutil.ToFloat64(nm.UDPDropped); got != 4 { t.Fatalf("dropped = %v", got) }
}
