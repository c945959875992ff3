package main

import (
    "context"
    "os"
    "os/signal"
    "syscall"

    "github.com/tebeka/atexit"
    "go.uber.org/zap"

    "paradis/pkg/config"
    "paradis/pkg/node"
    "paradis/pkg/observability"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
    cfg, err := config.Load(opts.ConfigPath)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    atexit.Register(func() { _ = logger.Sync() })

    zap.L().Info("paradis-node starting")
    zap.L().Debug("effective configuration", zap.Any("config", cfg))

    n, err := node.New(cfg)
    if err != nil {
        zap.L().Error("failed to start node", zap.Error(err))
        return 1
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()
    zap.L().Info("node is running; press Ctrl+C to exit", zap.Stringer("id", n.ID()), zap.String("addr", n.Addr().String()))
    if err := n.Run(ctx); err != nil {
        zap.L().Error("node stopped with error", zap.Error(err))
        return 1
    }
    zap.L().Info("node stopped")
    return 0
}
