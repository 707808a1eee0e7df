package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/brokerguard/internal/api"
	"github.com/lalith-99/brokerguard/internal/audit"
	"github.com/lalith-99/brokerguard/internal/compliance"
	"github.com/lalith-99/brokerguard/internal/config"
	"github.com/lalith-99/brokerguard/internal/db"
	"github.com/lalith-99/brokerguard/internal/exchange"
	"github.com/lalith-99/brokerguard/internal/observ"
	"github.com/lalith-99/brokerguard/internal/realtime"
	"github.com/lalith-99/brokerguard/internal/repository"
	"github.com/lalith-99/brokerguard/internal/repository/cache"
	"github.com/lalith-99/brokerguard/internal/repository/memory"
	"github.com/lalith-99/brokerguard/internal/repository/postgres"
	"github.com/lalith-99/brokerguard/internal/sweeper"
	"github.com/lalith-99/brokerguard/internal/tenancy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stores is one complete set of repositories, backed either by Postgres or
// by process memory.
type stores struct {
	tx        repository.Transactor
	directory repository.DirectoryRepository
	tenants   repository.TenantRepository
	policies  repository.PolicyRepository
	riskTags  repository.RiskTagRepository
	contacts  repository.ContactRepository
	messages  repository.MessageRepository
	copies    repository.CopyRepository
	exchanges repository.ExchangeRepository
	health    api.HealthChecker
}

func postgresStores(database *db.DB) stores {
	pool := database.Pool()
	return stores{
		tx:        database,
		directory: postgres.NewDirectoryStore(pool),
		tenants:   postgres.NewTenantStore(pool),
		policies:  postgres.NewPolicyStore(pool),
		riskTags:  postgres.NewRiskTagStore(pool),
		contacts:  postgres.NewContactStore(pool),
		messages:  postgres.NewMessageStore(pool),
		copies:    postgres.NewCopyStore(pool),
		exchanges: postgres.NewExchangeStore(pool),
		health:    database,
	}
}

func memoryStores() stores {
	dir := memory.NewDirectoryStore()
	return stores{
		tx:        memory.NewTransactor(),
		directory: dir,
		tenants:   dir,
		policies:  memory.NewPolicyStore(),
		riskTags:  memory.NewRiskTagStore(dir),
		contacts:  memory.NewContactStore(dir),
		messages:  memory.NewMessageStore(),
		copies:    memory.NewCopyStore(dir),
		exchanges: memory.NewExchangeStore(),
	}
}

func run() error {
	// ---------------------------------------------------------------
	// 1. Config and logger
	// ---------------------------------------------------------------
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := observ.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------------------------------------------------------------
	// 2. Storage
	//
	// Without DATABASE_URL everything runs in memory, which is only
	// useful for local development: nothing survives a restart.
	// ---------------------------------------------------------------
	var st stores
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer database.Close()

		if cfg.MigrateOnStart {
			if err := database.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		st = postgresStores(database)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		st = memoryStores()
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("redis connection established", zap.String("addr", opts.Addr))
	}

	// ---------------------------------------------------------------
	// 3. Metrics and audit sinks
	// ---------------------------------------------------------------
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observ.NewMetrics(reg)

	hub := realtime.NewHub(rdb, realtime.DefaultChannel, logger.Named("realtime"))
	sinks := audit.Multi{audit.NewLogPublisher(logger), hub}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := audit.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaAuditTopic, logger, metrics)
		if err != nil {
			return fmt.Errorf("create kafka publisher: %w", err)
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := kafka.Close(flushCtx); err != nil {
				logger.Warn("kafka flush failed", zap.Error(err))
			}
		}()
		sinks = append(sinks, kafka)
	}
	var pub audit.Publisher = sinks

	// ---------------------------------------------------------------
	// 4. Services
	// ---------------------------------------------------------------
	policies := cache.NewPolicyCache(st.policies, rdb, cfg.PolicyCacheTTL, logger.Named("policy_cache"))
	guard := tenancy.NewGuard(st.directory, pub, logger.Named("tenancy"))

	coreOpts := []compliance.Option{compliance.WithAudit(pub), compliance.WithMetrics(metrics)}
	engine := compliance.NewEngine(compliance.EngineStores{
		Tx:        st.tx,
		Policies:  policies,
		RiskTags:  st.riskTags,
		Contacts:  st.contacts,
		Messages:  st.messages,
		Copies:    st.copies,
		Exchanges: st.exchanges,
	}, guard, logger.Named("engine"), coreOpts...)
	moderator := compliance.NewModerator(st.copies, logger.Named("moderation"), coreOpts...)
	registry := compliance.NewRegistry(st.riskTags, policies, guard, logger.Named("risk_tags"), coreOpts...)
	monitor := compliance.NewMonitor(st.tx, st.contacts, guard, logger.Named("monitoring"), coreOpts...)
	settings := compliance.NewSettings(policies, logger.Named("settings"), coreOpts...)
	dashboard := compliance.NewDashboard(st.copies, st.riskTags, st.contacts, st.exchanges)

	workflow := exchange.NewWorkflow(exchange.Stores{
		Tx:        st.tx,
		Policies:  policies,
		RiskTags:  st.riskTags,
		Contacts:  st.contacts,
		Exchanges: st.exchanges,
	}, guard, logger.Named("exchange"), exchange.WithAudit(pub), exchange.WithMetrics(metrics))

	sweep := sweeper.New(st.tenants, policies, st.copies, workflow, sweeper.Config{
		Interval:    cfg.SweepInterval,
		Concurrency: cfg.SweepConcurrency,
	}, logger, sweeper.WithAudit(pub), sweeper.WithMetrics(metrics))

	// ---------------------------------------------------------------
	// 5. HTTP
	// ---------------------------------------------------------------
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.RouterConfig{
		JWTSecret: cfg.JWTSecret,
		Gatherer:  reg,
		Health:    st.health,
	}, api.Handlers{
		Broker:    api.NewBrokerHandler(dashboard, moderator, registry, monitor, settings, logger.Named("api")),
		Exchanges: api.NewExchangeHandler(workflow, logger.Named("api")),
		Messages:  api.NewMessageHandler(engine, logger.Named("api")),
		Stream:    api.NewStreamHandler(hub, logger.Named("api")),
	}, logger.Named("http"))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ---------------------------------------------------------------
	// 6. Run until a signal arrives or any component fails
	// ---------------------------------------------------------------
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return sweep.Run(gctx) })
	g.Go(func() error {
		logger.Info("starting brokerguard",
			zap.String("port", cfg.Port),
			zap.String("env", cfg.Env),
			zap.Bool("postgres", cfg.DatabaseURL != ""),
			zap.Bool("redis", rdb != nil),
			zap.Bool("kafka", len(cfg.KafkaBrokers) > 0))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
