package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"adjusterhub/internal/ai"
	"adjusterhub/internal/app"
	"adjusterhub/internal/automation"
	"adjusterhub/internal/cache"
	"adjusterhub/internal/config"
	"adjusterhub/internal/logging"
	"adjusterhub/internal/model"
	mysqlClient "adjusterhub/internal/platform/mysql"
	rabbitmqClient "adjusterhub/internal/platform/rabbitmq"
	redisClient "adjusterhub/internal/platform/redis"
	"adjusterhub/internal/ratelimit"
	"adjusterhub/internal/repository"
	"adjusterhub/internal/security"
	httptransport "adjusterhub/internal/transport/http"
	"adjusterhub/internal/transport/http/handler"
	"adjusterhub/internal/transport/http/middleware"
	"adjusterhub/internal/worker"
)

type App struct {
	Config      *config.Config
	Log         *zap.Logger
	MySQL       *gorm.DB
	Redis       *redis.Client
	MQConn      *amqp.Connection
	EventWorker *worker.EventPersistWorker
	Scheduler   *worker.Scheduler

	HTTP      httptransport.Dependencies
	StartedAt time.Time
}

// New loads config, connects the backing services and assembles the service graph.
// Redis and RabbitMQ are optional: an empty address falls back to in-process limiting
// and direct writes.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger failed: %w", err)
	}

	a := &App{Config: cfg, Log: log, StartedAt: time.Now()}
	if err := a.connect(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connect(ctx context.Context) error {
	cfg := a.Config

	mysqlDB, err := mysqlClient.New(ctx, cfg.MySQLDSN(), a.Log)
	if err != nil {
		return err
	}
	a.MySQL = mysqlDB
	if err := mysqlDB.AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("auto migrate tables failed: %w", err)
	}

	if cfg.Redis.Addr != "" {
		redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		a.Redis = redisCli
	} else {
		a.Log.Warn("redis not configured, using in-process login limiter and no history cache")
	}

	if cfg.RabbitMQ.URL != "" {
		mqConn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL)
		if err != nil {
			return err
		}
		a.MQConn = mqConn
	} else {
		a.Log.Warn("rabbitmq not configured, events are written synchronously")
	}
	return nil
}

func (a *App) wire(ctx context.Context) error {
	cfg := a.Config
	log := a.Log
	db := a.MySQL

	userRepo := repository.NewUserRepository(db)
	firmRepo := repository.NewFirmRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	claimRepo := repository.NewClaimRepository(db)
	earningRepo := repository.NewEarningRepository(db)
	eventRepo := repository.NewSecurityEventRepository(db)
	chatMessageRepo := repository.NewChatMessageRepository(db)

	var publisher app.EventPublisher
	if a.MQConn != nil {
		publisher = rabbitmqClient.NewEventPublisher(a.MQConn, cfg.RabbitMQ.EventsQueue)
		a.EventWorker = worker.NewEventPersistWorker(a.MQConn, chatMessageRepo, eventRepo, cfg.RabbitMQ.EventsQueue, log.Named("event_worker"))
		if err := a.EventWorker.Start(ctx); err != nil {
			return fmt.Errorf("start event worker failed: %w", err)
		}
	}

	var loginLimiter ratelimit.Limiter
	var memoryLimiter *ratelimit.MemoryLimiter
	loginWindow := time.Duration(cfg.Security.LoginWindowSeconds) * time.Second
	var historyCache app.HistoryCache
	if a.Redis != nil {
		loginLimiter = ratelimit.NewRedisLimiter(a.Redis, cfg.Security.LoginMaxAttempts, loginWindow)
		historyCache = cache.NewHistoryCache(a.Redis,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
			cfg.LLM.MaxContextMessage,
		)
	} else {
		memoryLimiter = ratelimit.NewMemoryLimiter(cfg.Security.LoginMaxAttempts, loginWindow)
		loginLimiter = memoryLimiter
	}

	auditor := app.NewAuditor(eventRepo, publisher, log.Named("audit"))
	authService := app.NewAuthService(userRepo, firmRepo, sessionRepo,
		security.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		security.NewTOTP(cfg.Auth.TOTPIssuer),
		loginLimiter,
		auditor,
		app.AuthSettings{
			SessionTTL:        time.Duration(cfg.Auth.SessionTTLMinute) * time.Minute,
			PasswordMinLength: cfg.Auth.PasswordMinLength,
			MaxFailedLogins:   cfg.Security.MaxFailedLogins,
			LockoutDuration:   time.Duration(cfg.Security.LockoutMinutes) * time.Minute,
		},
		log.Named("auth"),
	)

	notifier := app.NewNotificationService(repository.NewNotificationRepository(db), log.Named("notify"))
	claimService := app.NewClaimService(claimRepo, userRepo, notifier, log.Named("claims"))
	earningService := app.NewEarningService(earningRepo, repository.NewPayoutRepository(db), notifier, cfg.Payout.MinCents)
	messageService := app.NewMessageService(repository.NewMessageRepository(db), userRepo, notifier)
	analyticsService := app.NewAnalyticsService(claimRepo, earningService, time.Duration(cfg.Analytics.CacheSeconds)*time.Second)

	llm := ai.NewClient(nil)
	chatConfig := ai.Config{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.Model}
	embeddingConfig := ai.Config{BaseURL: cfg.LLM.BaseURL, APIKey: cfg.LLM.APIKey, Model: cfg.LLM.EmbeddingModel}
	chatService := app.NewChatService(repository.NewChatSessionRepository(db), chatMessageRepo, publisher, historyCache,
		llm, chatConfig, cfg.LLM.MaxContextMessage, log.Named("chat"))
	documentService := app.NewDocumentService(repository.NewDocumentRepository(db), claimRepo, llm, embeddingConfig, chatConfig,
		cfg.Storage.Root, int64(cfg.Storage.MaxUploadMB)<<20, log.Named("documents"))

	registry, err := automation.LoadDir(cfg.Automation.ConnectorsDir)
	if err != nil {
		return fmt.Errorf("load portal connectors failed: %w", err)
	}
	log.Info("portal connectors loaded", zap.Int("count", len(registry.List())), zap.String("dir", cfg.Automation.ConnectorsDir))
	runner := automation.NewRunner(&http.Client{Timeout: time.Duration(cfg.Automation.TimeoutSeconds) * time.Second}, log.Named("automation"))
	automationService := app.NewAutomationService(claimRepo, firmRepo, userRepo, repository.NewAutomationLogRepository(db),
		registry, runner, notifier, log.Named("automation"))

	ipLimiter := ratelimit.NewKeyedLimiter(cfg.Security.RequestsPerSecond, cfg.Security.RequestBurst)
	guard := middleware.NewGuard(
		middleware.GuardConfig{
			BlockDuration:       time.Duration(cfg.Security.BlockMinutes) * time.Minute,
			SuspiciousThreshold: cfg.Security.SuspiciousThreshold,
		},
		security.NewHoneypot(cfg.Security.HoneypotPaths),
		security.HeaderValidator{
			MaxHeaderCount:     cfg.Security.MaxHeaderCount,
			MaxUserAgentLength: cfg.Security.MaxUserAgentLength,
			MaxBodyBytes:       cfg.Security.MaxBodyBytes,
		},
		security.NewPatternDetector(),
		ipLimiter,
		auditor,
	)

	sweepers := map[string]func() int{
		"auth_sessions": authService.SweepCache,
		"analytics":     analyticsService.SweepCache,
		"guard":         guard.Sweep,
		"ip_limiters":   func() int { return ipLimiter.Evict(10 * time.Minute) },
	}
	if memoryLimiter != nil {
		sweepers["login_limiter"] = memoryLimiter.Sweep
	}
	a.Scheduler = worker.NewScheduler(log.Named("scheduler"))
	if err := a.Scheduler.Add("purge_sessions", "@hourly", worker.PurgeJob(log, "expired sessions", authService.PurgeExpiredSessions)); err != nil {
		return err
	}
	if err := a.Scheduler.Add("sweep_caches", "@every 1m", worker.SweepJob(log, sweepers)); err != nil {
		return err
	}
	a.Scheduler.Start()

	a.HTTP = httptransport.Dependencies{
		Config:        cfg,
		Log:           log,
		Guard:         guard,
		Auth:          authService,
		Auditor:       auditor,
		Claims:        claimService,
		Messages:      messageService,
		Notifications: notifier,
		Earnings:      earningService,
		Documents:     documentService,
		Analytics:     analyticsService,
		Chat:          chatService,
		Automation:    automationService,
		HealthChecks:  a.healthChecks(),
		StartedAt:     a.StartedAt,
	}
	return nil
}

func (a *App) healthChecks() map[string]handler.DependencyCheck {
	checks := map[string]handler.DependencyCheck{
		"mysql": func(ctx context.Context) error { return mysqlClient.Ping(ctx, a.MySQL) },
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx, a.Redis) }
	}
	if a.MQConn != nil {
		checks["rabbitmq"] = func(ctx context.Context) error { return rabbitmqClient.Ping(ctx, a.MQConn) }
	}
	return checks
}

func (a *App) Close() error {
	var closeErr error
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.EventWorker != nil {
		a.EventWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MySQL != nil {
		sqlDB, err := a.MySQL.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				closeErr = err
			}
		}
	}
	if a.Log != nil {
		_ = a.Log.Sync()
	}
	return closeErr
}
