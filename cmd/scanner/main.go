package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/vladr1050/crypto-long-signals-bot/config"
	"github.com/vladr1050/crypto-long-signals-bot/internal/logger"
	"github.com/vladr1050/crypto-long-signals-bot/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	lg := logger.Init("signal-scanner", logger.ParseLevel(cfg.LogLevel))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	svc, err := service.New(ctx, cfg, lg)
	if err != nil {
		lg.Fatal().Err(err).Msg("init failed")
	}
	if err := svc.Run(ctx); err != nil {
		lg.Fatal().Err(err).Msg("fatal")
	}
}
