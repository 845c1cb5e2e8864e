package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/eventrian/go-session-service/auth"
	"github.com/eventrian/go-session-service/internal/config"
	"github.com/eventrian/go-session-service/server"
	"github.com/eventrian/go-session-service/token/access"
	"github.com/eventrian/go-session-service/token/renewal"
	"github.com/eventrian/go-session-service/token/renewal/redisstore"
	"github.com/eventrian/go-session-service/token/renewal/storefake"
	fakeuserrepo "github.com/eventrian/go-session-service/users/repofake"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
	log.Info().Msg("server stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("recovered from panic")
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	cfg := config.New()
	logger := newLogger(cfg)
	displayAppname(cfg.GetAppName())

	store := newTokenStore(cfg, logger)

	renewals, err := renewal.NewService(store, cfg, logger)
	if err != nil {
		return fmt.Errorf("renewal.NewService: %w", err)
	}

	janitor := renewal.NewJanitor(renewals, cfg.GetCleanupInterval(), logger)
	janitor.Start()
	defer janitor.Stop()

	signer, err := access.NewHMACSigner(cfg.GetSigningSecret(), cfg.GetTokenIssuer(), cfg.GetTokenAudience(), cfg.GetAccessTokenExpiry())
	if err != nil {
		return fmt.Errorf("access.NewHMACSigner: %w", err)
	}

	authService, err := auth.NewService(fakeuserrepo.NewFakeUserProvider(), signer, renewals, logger)
	if err != nil {
		return fmt.Errorf("auth.NewService: %w", err)
	}

	httpServer := &http.Server{
		Addr:    cfg.GetPort(),
		Handler: server.New(cfg, authService, signer, logger),
	}

	go listenAndServe(httpServer, logger)
	waitForStopSignal()
	return shutdown(httpServer)
}

func newLogger(cfg config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
	if cfg.GetEnv() == "DEV" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return logger
}

func newTokenStore(cfg config.Config, logger zerolog.Logger) renewal.Store {
	addr := cfg.GetRedisAddr()
	if addr == "" {
		logger.Info().Msg("no redis address configured, using in-memory token store")
		return storefake.NewFakeRenewalStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.GetRedisPassword(),
		DB:       cfg.GetRedisDB(),
	})
	logger.Info().Str("addr", addr).Msg("using redis token store")
	return redisstore.New(client)
}

func listenAndServe(httpServer *http.Server, logger zerolog.Logger) {
	logger.Info().Str("addr", httpServer.Addr).Msg("server listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("server.ListenAndServe")
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(httpServer *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
