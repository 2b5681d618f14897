// bot runs the Telegram bot that connects users' Telegram accounts and keeps
// their userbots running. Set TELEGRAM_BOT_TOKEN, TELEGRAM_API_ID,
// TELEGRAM_API_HASH and DATABASE_URL; see internal/config for the rest.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"userbot-connect/internal/bot"
	"userbot-connect/internal/config"
	"userbot-connect/internal/db"
	healthhandler "userbot-connect/internal/health/handler"
	"userbot-connect/internal/login"
	"userbot-connect/internal/mtproto"
	"userbot-connect/internal/server"
	"userbot-connect/internal/sessionstore"
	"userbot-connect/internal/telemetry"
	otelsetup "userbot-connect/internal/telemetry/otel"
	"userbot-connect/internal/telemetry/producer"
	telemetryrepo "userbot-connect/internal/telemetry/repository"
	userdomain "userbot-connect/internal/user/domain"
	userrepo "userbot-connect/internal/user/repository"
	"userbot-connect/internal/userbot"
)

const (
	shutdownTimeout     = 15 * time.Second
	healthCheckInterval = 15 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.RequireBot(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, cfg.OTELServiceName, cfg.OTLPInsecure)
	if err != nil {
		log.Fatalf("otel: %v", err)
	}
	providers.SetGlobal()

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()
	users := userrepo.NewPostgresRepository(conn)

	store, sessionCheck, err := openSessions(ctx, cfg)
	if err != nil {
		log.Fatalf("sessions: %v", err)
	}
	defer store.Close()

	events, closeEvents := buildEmitter(cfg, providers, conn)
	defer closeEvents()

	metrics, err := login.NewMetrics(providers.MeterProvider.Meter("userbot-connect/login"))
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}

	api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		log.Fatalf("telegram: %v", err)
	}
	api.Debug = cfg.Env == "development"
	notifier := bot.NewNotifier(api, users)

	mt := mtproto.NewClient(cfg.TelegramAPIID, cfg.TelegramAPIHash)
	runner := userbot.NewRunner(mt, userbot.WithOnRevoked(func(ctx context.Context, userID int64) {
		if err := store.Delete(ctx, userID); err != nil {
			log.Printf("bot: user %d: drop revoked session: %v", userID, err)
		}
		if err := users.SetAuthState(ctx, userID, userdomain.AuthStateGuest); err != nil {
			log.Printf("bot: user %d: reset auth state: %v", userID, err)
		}
	}))

	coord := login.NewCoordinator(login.Deps{
		Client:   mt,
		Sessions: store,
		Users:    users,
		Notifier: notifier,
		Events:   events,
		Metrics:  metrics,
		PostLogin: func(ctx context.Context, userID int64, token string) error {
			if err := notifier.LoginSucceeded(ctx, userID); err != nil {
				log.Printf("bot: user %d: notify success: %v", userID, err)
			}
			return runner.PostLogin(ctx, userID, token)
		},
	}, login.Options{
		CodeLength:    cfg.LoginCodeLength,
		IdleTimeout:   cfg.IdleTimeout(),
		SweepInterval: cfg.SweepInterval(),
		ActivationTTL: cfg.ActivationTTL(),
	})

	runner.Rehydrate(store.All())

	handler := bot.NewHandler(bot.Deps{
		Sender:        api,
		Notifier:      notifier,
		Logins:        coord,
		Users:         users,
		Sessions:      store,
		Workers:       runner,
		Events:        events,
		CodeLength:    cfg.LoginCodeLength,
		ActivationTTL: cfg.ActivationTTL(),
		Language:      cfg.DefaultLanguage,
	})

	health := healthhandler.NewServer(conn, sessionCheck)
	grpcServer, err := serveHealth(ctx, cfg, health)
	if err != nil {
		log.Fatalf("health: %v", err)
	}

	go func() {
		if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("login: sweeper stopped: %v", err)
		}
	}()

	if err := handler.Poll(ctx, api); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("bot: polling stopped: %v", err)
	}

	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := coord.Shutdown(shutdownCtx); err != nil {
		log.Printf("login: shutdown: %v", err)
	}
	if err := runner.StopAll(shutdownCtx); err != nil {
		log.Printf("userbot: shutdown: %v", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	time.Sleep(telemetry.ShutdownDrainDuration)
	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Printf("otel: shutdown: %v", err)
	}
	log.Println("stopped")
}

// openSessions opens the configured session backend and returns a readiness
// probe for it (nil for the file backend).
func openSessions(ctx context.Context, cfg *config.Config) (sessionstore.Store, healthhandler.Checker, error) {
	var sealer sessionstore.Sealer
	key, err := cfg.SessionKey()
	if err != nil {
		return nil, nil, err
	}
	if key != nil {
		s, err := sessionstore.NewSecretboxSealer(key[:])
		if err != nil {
			return nil, nil, err
		}
		sealer = s
	}

	if cfg.SessionBackend == config.SessionBackendRedis {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store, err := sessionstore.OpenRedis(ctx, rdb, cfg.SessionRedisKey, sealer)
		if err != nil {
			_ = rdb.Close()
			return nil, nil, err
		}
		return store, healthhandler.CheckFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}), nil
	}
	store, err := sessionstore.OpenFile(cfg.SessionFile, sealer)
	if err != nil {
		return nil, nil, err
	}
	return store, nil, nil
}

// buildEmitter fans login events out to OTel logs and either Kafka (drained
// into login_events by cmd/worker) or, without brokers, login_events directly.
func buildEmitter(cfg *config.Config, providers *otelsetup.Providers, conn *sql.DB) (telemetry.EventEmitter, func()) {
	emitters := telemetry.MultiEmitter{otelsetup.NewEventEmitter(providers.LoggerProvider)}
	var p producer.Producer
	if kp := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic); kp != nil {
		p = kp
		emitters = append(emitters, kp)
		log.Printf("telemetry: publishing login events to kafka topic %s", cfg.TelemetryKafkaTopic)
	} else {
		emitters = append(emitters, telemetryrepo.NewPostgresRepository(conn))
	}
	return emitters, func() {
		if p != nil {
			if err := p.Close(); err != nil {
				log.Printf("telemetry: close producer: %v", err)
			}
		}
	}
}

// serveHealth starts the gRPC health service unless HEALTH_GRPC_ADDR is empty.
func serveHealth(ctx context.Context, cfg *config.Config, health *healthhandler.Server) (*grpc.Server, error) {
	if cfg.HealthGRPCAddr == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", cfg.HealthGRPCAddr)
	if err != nil {
		return nil, err
	}
	s := server.New(server.Deps{Health: health, Reflection: cfg.Env != "production"})
	go health.Run(ctx, healthCheckInterval)
	go func() {
		log.Printf("gRPC health server listening on %s", cfg.HealthGRPCAddr)
		if err := s.Serve(lis); err != nil {
			log.Printf("health: serve: %v", err)
		}
	}()
	return s, nil
}
