package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/uberfix/fixhooks/internal/audit"
	"github.com/uberfix/fixhooks/internal/auth"
	"github.com/uberfix/fixhooks/internal/events"
	"github.com/uberfix/fixhooks/internal/flow"
	"github.com/uberfix/fixhooks/internal/flowcrypto"
	"github.com/uberfix/fixhooks/internal/inbound"
	"github.com/uberfix/fixhooks/internal/leads"
	"github.com/uberfix/fixhooks/internal/maintenance"
	"github.com/uberfix/fixhooks/internal/notify"
	"github.com/uberfix/fixhooks/internal/platform/config"
	"github.com/uberfix/fixhooks/internal/platform/database"
	"github.com/uberfix/fixhooks/internal/platform/middleware"
	"github.com/uberfix/fixhooks/internal/platform/secrets"
	"github.com/uberfix/fixhooks/internal/platform/server"
	"github.com/uberfix/fixhooks/internal/platform/telemetry"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load("config.yaml")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Setup logging
	logger := telemetry.NewLogger(cfg.Log.Level, cfg.Log.Format)
	telemetry.SetDefault(logger)

	slog.Info("fixhooks starting", "port", cfg.Server.Port)

	// Graceful shutdown on SIGINT/SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sec := secrets.FromEnv()
	checkSecrets(sec)

	// Database
	var pool *database.Pool
	if cfg.Database.URL != "" {
		slog.Info("connecting to database")
		p, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
		if err != nil {
			slog.Warn("database connection failed, starting without DB", "error", err)
		} else {
			pool = p
			defer pool.Close()

			migrationsURL := fmt.Sprintf("file://%s", cfg.Database.MigrationsPath)
			if err := database.RunMigrations(cfg.Database.URL, migrationsURL); err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			slog.Info("migrations complete")
		}
	}

	// Audit
	var auditLogger audit.Logger = audit.NopLogger{}
	var auditHandler *audit.Handler
	if pool != nil {
		auditStore := audit.NewStore()
		async := audit.NewAsyncLogger(pool, auditStore, audit.LoggerConfig{
			BufferSize:    cfg.Audit.BufferSize,
			BatchSize:     cfg.Audit.BatchSize,
			FlushInterval: time.Duration(cfg.Audit.FlushInterval) * time.Millisecond,
		})
		auditLogger = async
		defer func() {
			_ = async.Close()
			if dropped := async.Dropped(); dropped > 0 {
				slog.Warn("audit events dropped under backpressure", "count", dropped)
			}
		}()
		auditHandler = audit.NewHandler(pool, auditStore)
		slog.Info("audit logger started")
	}

	// Auth for internal endpoints
	var tokenSvc *auth.TokenService
	if cfg.Auth.SigningKey != "" {
		tokenSvc = auth.NewTokenService(cfg.Auth.SigningKey, cfg.Auth.Issuer, time.Hour)
	} else {
		slog.Warn("auth signing key not configured, internal endpoints disabled")
	}

	// Outbound providers
	httpClient := &http.Client{Timeout: time.Duration(cfg.Providers.TimeoutSecs) * time.Second}
	prov := buildProviders(cfg, sec, httpClient, logger)

	// Dispatch dedup
	var dedup notify.DedupGuard
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			slog.Warn("redis ping failed, dedup will fail open until it recovers", "addr", cfg.Redis.Addr, "error", err)
		}
		pingCancel()
		dedup = notify.NewRedisDedup(rdb, time.Duration(cfg.Notify.DedupTTLSecs)*time.Second)
	}

	deps := server.Dependencies{
		Pool:             pool,
		Auth:             tokenSvc,
		AuditHandler:     auditHandler,
		FlowVerifyToken:  sec.WhatsAppVerifyToken(),
		LeadsVerifyToken: sec.LeadsVerifyToken(),
		Logger:           logger,
	}

	var consumer *events.Consumer
	if pool != nil {
		repo := maintenance.NewRepository(pool, maintenance.NewStore())

		dispatcher := notify.NewDispatcher(repo, prov.texts, prov.mailer, notify.DispatcherConfig{
			DefaultChannels: parseChannels(cfg.Notify.DefaultChannels),
			Dedup:           dedup,
			Audit:           auditLogger,
			Logger:          logger,
		})
		deps.NotifyHandler = notify.NewHandler(dispatcher)

		deps.InboundReceiver = inbound.NewReceiver(repo, repo, prov.twilioVerifier, auditLogger, inbound.Config{
			PublicBaseURL: cfg.Webhooks.PublicBaseURL,
			MaxBodyBytes:  cfg.Webhooks.MaxBodyBytes,
		})

		deps.FlowHandler = flow.NewHandler(flowCodec(sec), repo, prov.confirmer, auditLogger, flow.Config{
			FlowID:        cfg.Flow.FlowID,
			InitialScreen: cfg.Flow.InitialScreen,
			SuccessScreen: cfg.Flow.SuccessScreen,
			MaxBodyBytes:  cfg.Webhooks.MaxBodyBytes,
		})

		deps.LeadsHandler = leads.NewHandler(repo, prov.leadFetcher, prov.metaVerifier, auditLogger, cfg.Webhooks.MaxBodyBytes)

		if len(cfg.Kafka.Brokers) > 0 {
			consumer = events.NewConsumer(events.NewReader(cfg.Kafka), dispatcher, events.ConsumerConfig{Logger: logger})
			slog.Info("lifecycle consumer configured", "topic", cfg.Kafka.Topic, "group_id", cfg.Kafka.GroupID)
		}
	}

	limiter := middleware.NewRateLimiter(cfg.Webhooks.RateLimit, cfg.Webhooks.RateLimitBurst, cfg.Webhooks.TrustProxy)
	deps.RateLimiter = limiter

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := server.New(addr, deps)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limiter.Run(gctx)
		return nil
	})
	if consumer != nil {
		g.Go(func() error { return consumer.Run(gctx) })
	}
	g.Go(func() error { return srv.Start(gctx) })

	slog.Info("server ready", "addr", addr, "database", pool != nil, "kafka", consumer != nil)
	return g.Wait()
}

// providerSecrets are checked at startup. Each one only disables its own
// feature when missing.
var providerSecrets = []string{
	secrets.EnvTwilioAccountSID,
	secrets.EnvTwilioAuthToken,
	secrets.EnvFacebookAppSecret,
	secrets.EnvWhatsAppVerifyToken,
	secrets.EnvWhatsAppAccessToken,
	secrets.EnvWhatsAppPhoneNumberID,
	secrets.EnvWhatsAppFlowPrivateKey,
	secrets.EnvResendAPIKey,
}

// checkSecrets logs missing provider secrets and a masked form of the rest.
func checkSecrets(sec *secrets.Accessor) []string {
	ok, missing := sec.Validate(providerSecrets...)
	if !ok {
		slog.Warn("provider secrets missing", "names", missing)
	}
	for _, name := range providerSecrets {
		if v := sec.Get(name); v != "" {
			slog.Debug("provider secret configured", "name", name, "value", secrets.Mask(v))
		}
	}
	return missing
}

func parseChannels(names []string) []notify.Channel {
	out := make([]notify.Channel, 0, len(names))
	for _, name := range names {
		ch, err := notify.ParseChannel(name)
		if err != nil {
			slog.Warn("ignoring default channel", "channel", name, "error", err)
			continue
		}
		out = append(out, ch)
	}
	return out
}

func flowCodec(sec *secrets.Accessor) *flowcrypto.Codec {
	pem := sec.FlowPrivateKey()
	if pem == "" {
		slog.Warn("flow private key not configured, flow exchanges will fail")
		return nil
	}
	codec, err := flowcrypto.NewCodec(pem)
	if err != nil {
		slog.Error("flow private key unusable, flow exchanges will fail", "error", err)
		return nil
	}
	return codec
}
