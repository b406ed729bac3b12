package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentvault/sessiongate/internal/bot"
	"github.com/agentvault/sessiongate/internal/config"
	"github.com/agentvault/sessiongate/internal/handler"
	"github.com/agentvault/sessiongate/internal/middleware"
	"github.com/agentvault/sessiongate/internal/pkg/logger"
	"github.com/agentvault/sessiongate/internal/repository"
	"github.com/agentvault/sessiongate/internal/service"
	"github.com/agentvault/sessiongate/internal/signer"
	"github.com/agentvault/sessiongate/internal/smartaccount"
	"github.com/agentvault/sessiongate/internal/vault"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level, cfg.Log.Format)

	// 2. Initialize Persistence
	// Session-key notifications and idempotency (Redis > Memory)
	var (
		sessionKeys repository.SessionKeyStore = repository.NewMemSessionKeyStore()
		idemStore   middleware.IdempotencyStore = middleware.NewInMemIdempotencyStore()
		ledgerRepo  service.LedgerRepo
		redisClient *repository.RedisClient
	)
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(cfg.Redis)
		if err == nil {
			logger.Info("Connected to Redis", "addr", cfg.Redis.Addr)
			sessionKeys = repository.NewRedisSessionKeyStore(redisClient, cfg.Redis.SessionKeyKey)
			idemStore = repository.NewRedisIdempotencyStore(redisClient, 24*time.Hour)
			ledgerRepo = repository.NewRedisLedgerRepo(redisClient, "", cfg.Ledger.BufferSize)
		} else {
			logger.Error("Failed to connect to Redis, falling back to memory", "error", err)
			redisClient = nil
		}
	}

	// Operation ledger (Postgres > Redis > local file)
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg.Database.DSN)
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			ledgerRepo = repository.NewPostgresLedgerRepo(db)
		} else {
			logger.Error("Failed to connect to DB, ledger falls back", "error", err)
		}
	}

	ledger, err := service.NewLedgerService(cfg.Ledger.LogDir, cfg.Ledger.BufferSize, ledgerRepo)
	if err != nil {
		log.Fatalf("Failed to initialize operation ledger: %v", err)
	}

	// 3. Chain and smart-account clients
	deps := service.Deps{
		Notifier: sessionKeys,
		Ledger:   ledger,
	}
	chainClient := vault.NewLazyClient(cfg.Chain.ChainRPCURL())
	if cfg.Chain.RequireRPC() == nil {
		deps.Code = chainClient
		if cfg.Vault.RequireAddress() == nil {
			deps.Vault = vault.NewReader(cfg.Vault.ContractAddress(), chainClient, 10*time.Second, 2)
		}

		var opts []smartaccount.Option
		if cfg.Chain.PaymasterPolicyID != "" {
			opts = append(opts, smartaccount.WithPaymasterPolicy(cfg.Chain.PaymasterPolicyID))
		}
		dialCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		infra, err := smartaccount.Dial(dialCtx, cfg.Chain.SmartAccountURL(), cfg.Chain.ChainID, opts...)
		cancel()
		if err != nil {
			logger.Error("Smart account API unavailable", "error", err)
		} else {
			deps.Infra = infra
			defer infra.Close()
		}
	} else {
		logger.Warn("Chain RPC not configured; actions will report a configuration error")
	}

	// 4. Initialize Core Services
	ctrl := service.NewController(service.SettingsFromConfig(cfg), deps)

	var owner service.Wallet
	if cfg.Wallet.PrivateKey != "" {
		s, err := signer.NewSigner(cfg.Wallet.PrivateKey, cfg.Chain.ChainID)
		if err != nil {
			log.Fatalf("Invalid owner wallet key: %v", err)
		}
		owner = s
		ctrl.Connect(s)
	}

	bridge := bot.NewBridge(
		bot.NewClient(cfg.Bot.BaseURL, cfg.Bot.Timeout()),
		ctrl,
		bot.Options{
			VaultAddress:   cfg.Vault.Address,
			StatusInterval: cfg.Bot.StatusInterval(),
			LogsInterval:   cfg.Bot.LogsInterval(),
			LogBuffer:      cfg.Bot.LogBuffer,
		},
	)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Bot.Timeout())
		defer cancel()
		if err := bridge.Sync(ctx); err != nil {
			logger.Warn("Bot not reachable at startup", "error", err)
		}
	}()

	// 5. Initialize Handlers
	sessionHandler := handler.NewSessionHandler(ctrl, owner)
	vaultHandler := handler.NewVaultHandler(ctrl)
	sessionKeyHandler := handler.NewSessionKeyHandler(sessionKeys)
	feedHandler := handler.NewFeedHandler(ctrl)
	operationHandler := handler.NewOperationHandler(ledger)
	botHandler := handler.NewBotHandler(bridge)

	// 6. Setup Router
	r := gin.New()
	r.Use(gin.Recovery())

	// Global Middleware
	r.Use(middleware.AuditMiddleware())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "sessiongate"})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// Informational endpoint polled by the bot; unauthenticated.
	r.GET("/api/session-key", sessionKeyHandler.Get)
	r.POST("/api/session-key", sessionKeyHandler.Post)

	// API V1 Routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg.Auth.APIKey))
	v1.Use(middleware.RateLimitMiddleware(middleware.NewLimiter(cfg.RateLimit.QPS, cfg.RateLimit.Burst)))
	v1.Use(middleware.IdempotencyMiddleware(idemStore))
	{
		v1.GET("/session", sessionHandler.GetSession)
		v1.GET("/session/feed", feedHandler.Serve)
		v1.POST("/wallet/connect", sessionHandler.Connect)
		v1.POST("/wallet/disconnect", sessionHandler.Disconnect)
		v1.POST("/account", sessionHandler.CreateAccount)
		v1.POST("/session-keys", sessionHandler.IssueSessionKey)

		v1.POST("/vault/ping", vaultHandler.Ping)
		v1.POST("/vault/withdraw", vaultHandler.Withdraw)
		v1.POST("/vault/deposit", vaultHandler.Deposit)
		v1.PUT("/vault/limits", vaultHandler.SetLimits)
		v1.POST("/vault/refresh", sessionHandler.Refresh)

		v1.GET("/operations", operationHandler.List)

		v1.GET("/bot", botHandler.View)
		v1.POST("/bot/start", botHandler.Start)
		v1.POST("/bot/stop", botHandler.Stop)
	}

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("SessionGate started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	bridge.Close()
	ledger.Close()
	chainClient.Close()
	if redisClient != nil {
		_ = redisClient.Close()
	}

	logger.Info("Server exiting")
}
