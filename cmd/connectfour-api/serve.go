package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MarcoPoloResearchLab/connectfour/internal/auth"
	"github.com/MarcoPoloResearchLab/connectfour/internal/config"
	"github.com/MarcoPoloResearchLab/connectfour/internal/database"
	"github.com/MarcoPoloResearchLab/connectfour/internal/logging"
	"github.com/MarcoPoloResearchLab/connectfour/internal/savedgames"
	"github.com/MarcoPoloResearchLab/connectfour/internal/server"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	shutdownTimeout  = 10 * time.Second
	redisPingTimeout = 2 * time.Second
)

func newServeCommand(configViper *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the saved game HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), configViper)
		},
	}
}

// store bundles the saved-game service with the resources it holds open.
type store struct {
	games *savedgames.Service
	close func()
}

func openStore(ctx context.Context, appConfig config.AppConfig, logger *zap.Logger) (*store, error) {
	db, err := database.OpenSQLite(appConfig.DatabasePath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	closers := []func(){func() { _ = sqlDB.Close() }}

	var cache savedgames.Cache
	if appConfig.CacheEnabled() {
		client := redis.NewClient(&redis.Options{Addr: appConfig.RedisAddress})
		closers = append(closers, func() { _ = client.Close() })

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		if err := client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, cache will retry per request",
				zap.String("address", appConfig.RedisAddress), zap.Error(err))
		}
		cancel()
		cache = savedgames.NewRedisCache(client, appConfig.CacheTTL)
	}

	games, err := savedgames.NewService(savedgames.ServiceConfig{
		Database:         db,
		Clock:            time.Now,
		RevisionProvider: savedgames.NewUUIDRevisionProvider(),
		Cache:            cache,
		Logger:           logger,
	})
	if err != nil {
		for _, closeFn := range closers {
			closeFn()
		}
		return nil, err
	}

	return &store{
		games: games,
		close: func() {
			for index := len(closers) - 1; index >= 0; index-- {
				closers[index]()
			}
		},
	}, nil
}

func newHandler(appConfig config.AppConfig, games server.GameStore, logger *zap.Logger) (http.Handler, error) {
	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.Issuer,
	})
	if err != nil {
		return nil, err
	}
	return server.NewHTTPHandler(server.Dependencies{
		Sessions: validator,
		Games:    games,
		Realtime: server.NewRealtimeDispatcher(),
		Logger:   logger,
	})
}

func runServer(ctx context.Context, configViper *viper.Viper) error {
	appConfig, err := config.Load(configViper)
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gameStore, err := openStore(signalCtx, appConfig, logger)
	if err != nil {
		return err
	}
	defer gameStore.close()

	handler, err := newHandler(appConfig, gameStore.games, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			zap.String("address", appConfig.HTTPAddress),
			zap.Bool("cache_enabled", appConfig.CacheEnabled()))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
