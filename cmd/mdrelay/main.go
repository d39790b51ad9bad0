package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog/log"

	"mdrelay/internal/infrastructure/config"
	"mdrelay/internal/infrastructure/logger"
	"mdrelay/internal/infrastructure/svc"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	watch := flag.String("watch", "", "comma separated assets to watch on the console (overrides app.watch)")
	flag.Parse()

	logger.Setup("info", "")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	if *watch != "" {
		cfg.App.Watch = cfg.App.Watch[:0]
		for _, a := range strings.Split(*watch, ",") {
			if a = strings.TrimSpace(a); a != "" {
				cfg.App.Watch = append(cfg.App.Watch, a)
			}
		}
	}
	logger.Setup(cfg.App.LogLevel, cfg.App.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service context initialization failed")
	}
	defer func() {
		if err := sc.Close(); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().
		Str("config", *configPath).
		Strs("watch", cfg.App.Watch).
		Bool("server", cfg.Server.Enabled).
		Str("addr", cfg.Server.Addr).
		Msg("mdrelay started")

	if err := sc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("relay exited")
	}
}
