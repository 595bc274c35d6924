package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/jastats/statsgateway/internal/config"
	"github.com/jastats/statsgateway/internal/logger"
	"github.com/jastats/statsgateway/internal/server"
)

func main() {
	configPath := pflag.StringP("config", "c", config.DefaultPath, "path to the startup YAML document")
	listen := pflag.String("listen", "", "listen address, overrides JAListenAddress")
	verbose := pflag.BoolP("verbose", "v", false, "log at debug level")
	pflag.Parse()

	boot := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		boot.Warn().Err(err).Msg("could not load .env")
	}

	overrides := map[string]any{}
	if *listen != "" {
		overrides["JAListenAddress"] = *listen
	}
	cfg, err := config.Load(*configPath, overrides)
	if err != nil {
		boot.Fatal().Err(err).Msg("could not load config")
	}

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	log, closer, err := logger.New(cfg.LogDir, cfg.SaveStats.LogFileName, level)
	if err != nil {
		boot.Fatal().Err(err).Msg("could not open log")
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, log)
	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("server exited")
		closer.Close()
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
