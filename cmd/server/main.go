package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/dkeye/ChessSignal/internal/adapters/auth"
	router "github.com/dkeye/ChessSignal/internal/adapters/http"
	"github.com/dkeye/ChessSignal/internal/adapters/mqtt"
	"github.com/dkeye/ChessSignal/internal/adapters/postgres"
	"github.com/dkeye/ChessSignal/internal/adapters/redisgroups"
	wssignal "github.com/dkeye/ChessSignal/internal/adapters/signal"
	"github.com/dkeye/ChessSignal/internal/app"
	"github.com/dkeye/ChessSignal/internal/config"
	"github.com/dkeye/ChessSignal/internal/core"
	"github.com/dkeye/ChessSignal/internal/domain"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "config file (default config/config.$CONFIG_ENV.yaml)")
	issueToken := pflag.String("issue-token", "", "print an access token for <user_id>:<username> and exit")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, v, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)
	config.Watch(v, func(next *config.Config, err error) {
		if err != nil {
			log.Warn().Err(err).Msg("config reload rejected")
			return
		}
		setLevel(next.LogLevel)
		log.Info().Str("log_level", next.LogLevel).Msg("config reloaded")
	})

	stats := &app.Stats{}

	var (
		presence  core.Presence
		directory core.UserDirectory
		memPres   *app.MemoryPresence
	)
	if cfg.Database.URL != "" {
		pool, err := postgres.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("database")
		}
		defer pool.Close()
		store, err := postgres.NewStore(pool, cfg.Database.UserTable)
		if err != nil {
			log.Fatal().Err(err).Msg("database")
		}
		presence, directory = store, store
	} else {
		memPres = app.NewMemoryPresence()
		presence = memPres
	}

	validator := auth.NewJWTValidator(cfg.JWT.Secret, cfg.JWT.AccessTTL, directory)
	if *issueToken != "" {
		printToken(validator, *issueToken)
		return
	}

	policy, err := app.PolicyByName(cfg.Backpressure)
	if err != nil {
		log.Fatal().Err(err).Msg("backpressure")
	}
	registry := app.NewRegistry(policy, stats)
	var groups core.GroupLayer = registry
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		layer := redisgroups.New(rdb, cfg.Redis.Prefix, registry)
		go func() {
			if err := layer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("redis group layer stopped")
				cancel()
			}
		}()
		groups = layer
		// Broadcasts published before the subscription is live would be lost.
		select {
		case <-layer.Ready():
		case <-ctx.Done():
			log.Info().Msg("shutdown before redis subscription was ready")
			return
		}
		log.Info().Str("addr", cfg.Redis.Addr).Msg("multi-node groups over redis")
	}

	var publisher core.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.NewPublisher(mqtt.Config{
			Host:        cfg.MQTT.Host,
			Port:        cfg.MQTT.Port,
			KeepAlive:   cfg.MQTT.KeepAlive,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			Timeout:     cfg.MQTT.Timeout,
			QoS:         cfg.MQTT.QoS,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
		})
	}

	deps := app.Deps{Groups: groups, Presence: presence, Stats: stats}
	if cfg.Rate.Enabled() {
		deps.Limiter = wssignal.NewRateLimiter(cfg.Rate.Limit, cfg.Rate.Interval)
	}
	ctl := wssignal.NewSignalWSController(deps, auth.NewAuthenticator(validator), wssignal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
		WriteWait:  cfg.WriteWait,
		SendBuffer: cfg.SendBuffer,
	})

	r := router.SetupRouter(ctx, router.Server{
		Cfg:      cfg,
		Signal:   ctl,
		Groups:   groups,
		Notifier: app.NewNotifier(groups, publisher, directory, stats),
		Stats:    stats,
		Presence: memPres,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Chess signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode != "debug" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	setLevel(cfg.LogLevel)
}

func setLevel(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func printToken(v *auth.JWTValidator, arg string) {
	id, username, _ := strings.Cut(arg, ":")
	ident, err := domain.NewIdentity(domain.UserID(id), username)
	if err != nil || ident.IsAnonymous() {
		log.Fatal().Err(err).Str("value", arg).Msg("bad --issue-token, want <user_id>:<username>")
	}
	token, err := v.Issue(ident)
	if err != nil {
		log.Fatal().Err(err).Msg("issue token")
	}
	fmt.Println(token)
}
