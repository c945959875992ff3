// Package observability sets up logging and Prometheus metrics for a node.
package observability

import (
    "os"
    "path/filepath"
    "strings"

    "go.uber.org/zap"
    "go.uber.org/zap/zapcore"
    "gopkg.in/natefinch/lumberjack.v2"

    "paradis/pkg/config"
)

// SetupLogger builds a zap.Logger from c, installs it as the global
// logger and redirects the stdlib log package. The caller should Sync it
// before exit.
func SetupLogger(c config.LogConfig) (*zap.Logger, error) {
    level := zap.NewAtomicLevelAt(parseLevel(c.Level))

    encCfg := zap.NewProductionEncoderConfig()
    if c.Development {
        encCfg = zap.NewDevelopmentEncoderConfig()
        encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
    }
    encoder := zapcore.NewConsoleEncoder(encCfg)
    if strings.EqualFold(c.Format, "json") {
        encoder = zapcore.NewJSONEncoder(encCfg)
    }

    cores := make([]zapcore.Core, 0, len(c.Outputs))
    for _, out := range c.Outputs {
        cores = append(cores, zapcore.NewCore(encoder, sinkFor(out, c.Rotation), level))
    }

    opts := []zap.Option{zap.AddCaller(), zap.AddStacktrace(zap.ErrorLevel)}
    if c.Development {
        opts = append(opts, zap.Development())
    }
    logger := zap.New(zapcore.NewTee(cores...), opts...)
    zap.ReplaceGlobals(logger)
    _, _ = zap.RedirectStdLogAt(logger, zap.InfoLevel)
    return logger, nil
}

func parseLevel(s string) zapcore.Level {
    s = strings.ToLower(strings.TrimSpace(s))
    if s == "warning" { s = "warn" }
    lvl, err := zapcore.ParseLevel(s)
    if err != nil { return zapcore.InfoLevel }
    return lvl
}

// sinkFor maps an output name to a writer: stdout, stderr, or a file that
// is rotated by lumberjack when rotation is enabled.
func sinkFor(out string, r config.RotationConfig) zapcore.WriteSyncer {
    switch strings.ToLower(out) {
    case "stdout":
        return zapcore.Lock(os.Stdout)
    case "stderr":
        return zapcore.Lock(os.Stderr)
    }
    if r.Enable {
        name := out
        if strings.TrimSpace(r.Filename) != "" { name = r.Filename }
        return zapcore.AddSync(&lumberjack.Logger{
            Filename:   name,
            MaxSize:    max(r.MaxSizeMB, 10),
            MaxBackups: max(r.MaxBackups, 1),
            MaxAge:     max(r.MaxAgeDays, 7),
            Compress:   r.Compress,
        })
    }
    if dir := filepath.Dir(out); dir != "." {
        _ = os.MkdirAll(dir, 0o755)
    }
    f, err := os.OpenFile(out, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
    if err != nil { return zapcore.Lock(os.Stderr) }
    return zapcore.AddSync(f)
}
