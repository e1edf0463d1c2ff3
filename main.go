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

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/arcwise-inc/arc-engine/pkg/adapters/datasource"
	_ "github.com/arcwise-inc/arc-engine/pkg/adapters/datasource/mssql"
	_ "github.com/arcwise-inc/arc-engine/pkg/adapters/datasource/postgres"
	"github.com/arcwise-inc/arc-engine/pkg/auth"
	"github.com/arcwise-inc/arc-engine/pkg/config"
	"github.com/arcwise-inc/arc-engine/pkg/database"
	"github.com/arcwise-inc/arc-engine/pkg/handlers"
	"github.com/arcwise-inc/arc-engine/pkg/llm"
	"github.com/arcwise-inc/arc-engine/pkg/logging"
	"github.com/arcwise-inc/arc-engine/pkg/mcp"
	"github.com/arcwise-inc/arc-engine/pkg/mcp/tools"
	"github.com/arcwise-inc/arc-engine/pkg/metrics"
	"github.com/arcwise-inc/arc-engine/pkg/middleware"
	"github.com/arcwise-inc/arc-engine/pkg/repositories"
	"github.com/arcwise-inc/arc-engine/pkg/retry"
	"github.com/arcwise-inc/arc-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// Load configuration
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.Bool("auth_verification", cfg.Auth.EnableVerification),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())),
		zap.String("warehouse", cfg.Warehouse.Type),
		zap.String("agent_provider", cfg.Agent.Provider),
		zap.Bool("redis", cfg.Redis.Enabled()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Engine database, retried while a container starts up.
	db, attempts, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func(attempt int) (*database.DB, error) {
		return database.NewConnection(ctx, &database.Config{
			URL:            cfg.Database.ConnectionString(),
			MaxConnections: cfg.Database.MaxConnections,
		})
	})
	if err != nil {
		return err
	}
	logger.Info("Connected to database", zap.Int("attempts", attempts))
	defer db.Close()

	if err := database.RunMigrations(db.SQLDB(), logger); err != nil {
		return err
	}

	warehouse, err := datasource.Open(ctx, &cfg.Warehouse, db.Pool, logger)
	if err != nil {
		return err
	}
	defer func() { _ = warehouse.Close() }()

	// Repositories
	workbookRepo := repositories.NewWorkbookRepository()
	dataTableRepo := repositories.NewDataTableRepository()
	formulaRepo := repositories.NewFormulaRepository()
	messageRepo := repositories.NewFormulaMessageRepository()
	reportRepo := repositories.NewReportRepository()
	usageRepo := repositories.NewUsageRepository()

	var threads llm.ThreadStore = repositories.NewThreadRepository()
	if cfg.Redis.Enabled() {
		redisClient, err := database.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()
		threads = llm.NewRedisThreadStore(redisClient, cfg.Redis.KeyPrefix, cfg.Redis.ThreadTTL)
		logger.Info("Conversation threads stored in Redis", zap.String("addr", cfg.Redis.Addr()))
	}

	agent, err := llm.NewAnalysisAgent(&cfg.Agent, threads, logger)
	if err != nil {
		return err
	}

	// Services
	schemas := services.NewSchemaProvider(dataTableRepo, warehouse.Namespace(), cfg.SchemaCacheTTL, logger)
	limiter := services.NewUsageLimiter(usageRepo, cfg.Usage, clockwork.NewRealClock(), logger)
	session := services.NewAgentSession(agent, schemas, limiter, formulaRepo, messageRepo, warehouse.Dialect(),
		services.AgentSessionConfig{MaxRetries: cfg.Agent.MaxRetries, RetryDelay: cfg.Agent.RetryDelay}, logger)

	workbookService := services.NewWorkbookService(workbookRepo, logger)
	dataTableService := services.NewDataTableService(dataTableRepo, workbookRepo, warehouse, schemas, cfg.Datasets, logger)
	formulaService := services.NewFormulaService(formulaRepo, messageRepo, dataTableRepo, workbookRepo,
		schemas, session, warehouse, logger)
	reportService := services.NewReportService(reportRepo, formulaRepo, workbookRepo, logger)

	// Authentication
	jwksClient, err := auth.NewJWKSClient(&auth.JWKSConfig{
		EnableVerification: cfg.Auth.EnableVerification,
		JWKSEndpoints:      cfg.Auth.JWKSEndpoints,
		Audience:           cfg.Auth.Audience,
	})
	if err != nil {
		return err
	}
	defer jwksClient.Close()
	authMiddleware := auth.NewMiddleware(auth.NewAuthService(jwksClient, logger), logger)
	userMiddleware := handlers.UserMiddleware(database.WithUserContext(db, logger))

	// MCP
	mcpServer := mcp.NewServer("arc-engine", cfg.Version, logger)
	tools.RegisterHealthTool(mcpServer.MCP(), cfg.Version, warehouse)
	tools.RegisterFormulaTools(mcpServer.MCP(), &tools.FormulaToolDeps{
		Scopes:         database.NewUserScopeProvider(db),
		FormulaService: formulaService,
		Logger:         logger.Named("mcp"),
	})

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, warehouse, logger).RegisterRoutes(mux)
	handlers.NewWorkbookHandler(workbookService, logger).RegisterRoutes(mux, authMiddleware, userMiddleware)
	handlers.NewDataTableHandler(dataTableService, formulaService, logger).RegisterRoutes(mux, authMiddleware, userMiddleware)
	handlers.NewFormulaHandler(formulaService, logger).RegisterRoutes(mux, authMiddleware, userMiddleware)
	handlers.NewReportHandler(reportService, logger).RegisterRoutes(mux, authMiddleware, userMiddleware)
	handlers.NewMCPHandler(mcpServer, logger).RegisterRoutes(mux, authMiddleware)
	mux.Handle("GET /metrics", promhttp.Handler())

	metrics.BuildInfo.WithLabelValues(cfg.Version).Set(1)

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.Chain(mux, middleware.Recoverer(logger), middleware.RequestLogger(logger), metrics.Middleware),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting arc-engine",
			zap.String("addr", srv.Addr),
			zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
