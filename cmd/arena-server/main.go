package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	appcfg "github.com/dkim-lab/chess-arena/internal/config"
	"github.com/dkim-lab/chess-arena/internal/obslog"
	"github.com/dkim-lab/chess-arena/internal/room"
	"github.com/dkim-lab/chess-arena/internal/rules"
	"github.com/dkim-lab/chess-arena/internal/session"
	"github.com/dkim-lab/chess-arena/internal/transport"
	"go.uber.org/zap"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}

	reg := room.NewRegistry()
	hub := transport.NewHub(cfg.SendBuffer)
	co := session.New(reg, rules.NewChessEngine(), hub)
	sweeper := session.NewSweeper(co, cfg.SweepInterval, cfg.RoomTimeout)
	srv := transport.NewServer(cfg, co, hub)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweeper.Run(sweepCtx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		obslog.L().Info("shutdown_signal", zap.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			obslog.L().Fatal("server_error", zap.Error(err))
		}
		return
	}

	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		obslog.L().Error("shutdown_error", zap.Error(err))
	}
	_ = obslog.L().Sync()
}
