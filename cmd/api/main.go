package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vartalap/internal/config"
	"vartalap/internal/db"
	"vartalap/internal/email"
	apihttp "vartalap/internal/http"
	"vartalap/internal/llm"
	"vartalap/internal/realtime"
	"vartalap/internal/repository"
	"vartalap/internal/responder"
	"vartalap/internal/service"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()
	if err := db.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal("db schema", zap.Error(err))
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		}
		cancel()
	}

	notifier, err := newNotifier(cfg, pool, redisClient, logger)
	if err != nil {
		logger.Fatal("realtime driver", zap.Error(err))
	}

	var (
		tokenStore    service.RefreshTokenStore
		signInLimiter service.RateLimiter
		otpLimiter    service.RateLimiter
	)
	if redisClient != nil {
		tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		signInLimiter = service.NewRedisRateLimiter(redisClient, "signin", time.Minute, cfg.SignInRateLimit)
		otpLimiter = service.NewRedisRateLimiter(redisClient, "otp", 10*time.Minute, 3)
	} else {
		tokenStore = service.NewMemoryRefreshTokenStore()
		signInLimiter = service.NewMemoryRateLimiter(time.Minute, cfg.SignInRateLimit)
	}

	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}
	jwtSvc := service.NewJWTService(cfg.JWTSecret, cfg.AccessTTL(), cfg.RefreshTTL(), tokenStore)

	userRepo := repository.NewPgUserRepository(pool)
	chatRepo := repository.NewPgChatRepository(pool)
	messageRepo := repository.NewPgMessageRepository(pool)

	authSvc := service.NewAuthService(logger, userRepo, jwtSvc, newEmailSender(cfg, logger), service.AuthOptions{
		RequireVerifiedEmail: cfg.RequireVerifiedEmail,
		SignInLimiter:        signInLimiter,
		OTPLimiter:           otpLimiter,
	})
	chatSvc := service.NewChatService(logger, chatRepo, messageRepo, notifier, cfg.MaxMessageLength)

	var responderSvc service.Responder
	if cfg.ResponderURL != "" {
		logger.Info("using external responder", zap.String("url", cfg.ResponderURL))
		responderSvc = responder.NewHTTPDispatcher(cfg.ResponderURL, cfg.ResponderSecret, logger)
	} else {
		if cfg.LLMAPIKey == "" {
			logger.Warn("llm api key not configured")
		}
		llmClient := llm.NewHTTPClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
		responderSvc = service.NewResponderService(logger, chatSvc, llmClient, service.NewContextBuilder("", 0))
	}

	health := func(ctx context.Context) error {
		if err := db.Ping(ctx, pool); err != nil {
			return err
		}
		if redisClient != nil {
			return redisClient.Ping(ctx).Err()
		}
		return nil
	}

	router := apihttp.NewRouter(
		logger,
		jwtSvc,
		apihttp.NewAuthHandler(logger, authSvc),
		apihttp.NewChatHandler(logger, chatSvc),
		apihttp.NewActionHandler(logger, chatSvc, responderSvc),
		health,
	)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("realtime", cfg.RealtimeDriver))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", zap.Error(err))
	}
}

func newNotifier(cfg *config.Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *zap.Logger) (realtime.Notifier, error) {
	switch cfg.RealtimeDriver {
	case config.RealtimeMemory:
		return realtime.NewMemoryNotifier(), nil
	case config.RealtimeRedis:
		if redisClient == nil {
			return nil, errors.New("REDIS_ADDR is required for the redis realtime driver")
		}
		return realtime.NewRedisNotifier(redisClient, logger), nil
	case config.RealtimePostgres, "":
		return realtime.NewPgNotifier(pool, logger), nil
	default:
		return nil, errors.New("unknown realtime driver " + cfg.RealtimeDriver)
	}
}

func newEmailSender(cfg *config.Config, logger *zap.Logger) email.Sender {
	if cfg.SMTPHost == "" {
		if cfg.RequireVerifiedEmail {
			logger.Warn("smtp not configured, verification codes go to the log")
		}
		return email.NewLogSender(logger)
	}
	sender, err := email.NewSMTPSender(email.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
		UseTLS:   cfg.SMTPUseTLS,
	})
	if err != nil {
		logger.Warn("smtp sender init failed", zap.Error(err))
		return email.NewLogSender(logger)
	}
	return sender
}
