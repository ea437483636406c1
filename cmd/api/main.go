package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/ExarKun28/sme-cashflow-blockchain/docs"
	"github.com/ExarKun28/sme-cashflow-blockchain/internal/config"
	"github.com/ExarKun28/sme-cashflow-blockchain/internal/handlers"
	"github.com/ExarKun28/sme-cashflow-blockchain/internal/ledger"
	"github.com/ExarKun28/sme-cashflow-blockchain/internal/middleware"
	"github.com/ExarKun28/sme-cashflow-blockchain/internal/services"
	"github.com/ExarKun28/sme-cashflow-blockchain/internal/state"
	"github.com/ExarKun28/sme-cashflow-blockchain/pkg/fabric"
)

// @title           SME Cash-Flow Ledger API
// @version         1.0
// @description     API for recording SME cash inflows and outflows
// @description     on a Hyperledger Fabric ledger or a local state store

// @BasePath  /

// @tag.name Health
// @tag.description Health check endpoints

// @tag.name Ledger
// @tag.description Ledger maintenance

// @tag.name Transactions
// @tag.description Create, read, update and delete cash-flow transactions

// @tag.name SME
// @tag.description Per-SME listings and summaries

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.Logging)

	log.Info().Str("backend", cfg.Ledger.Backend).Msg("Starting SME Cash-Flow Ledger API")

	svc, closeBackend, err := newLedgerService(cfg)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Ledger.Backend).Msg("Failed to open ledger backend")
	}
	defer closeBackend()

	if cfg.Ledger.SeedOnStart {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout)
		if err := svc.InitLedger(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to seed ledger")
		}
		cancel()
	}

	handler := handlers.NewHandler(svc)

	if swaggerHost := os.Getenv("SWAGGER_HOST"); swaggerHost != "" {
		docs.SwaggerInfo.Host = swaggerHost
	}

	router := setupRouter(cfg, handler)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// newLedgerService opens the configured backend. The returned func releases
// its connections.
func newLedgerService(cfg *config.Config) (services.LedgerService, func(), error) {
	if cfg.Ledger.Backend == config.BackendFabric {
		conn, err := fabric.Connect(cfg.Fabric)
		if err != nil {
			return nil, nil, err
		}
		return services.NewFabricService(conn), conn.Close, nil
	}

	policy, err := ledger.ParseScanPolicy(cfg.Ledger.ScanPolicy)
	if err != nil {
		return nil, nil, err
	}

	var (
		store   state.Store
		closeFn = func() {}
	)

	switch cfg.Ledger.Backend {
	case config.BackendMemory:
		store = state.NewMemoryStore()

	case config.BackendSQLite:
		s, err := state.OpenSQLite(cfg.SQLite.Path, cfg.SQLite.LogMode)
		if err != nil {
			return nil, nil, err
		}
		store = s
		closeFn = func() {
			if err := s.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close SQLite store")
			}
		}

	case config.BackendMongo:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.Timeout)
		defer cancel()
		client, err := state.ConnectMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return nil, nil, err
		}
		store = state.NewMongoStore(client.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection))
		closeFn = func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Mongo.Timeout)
			defer cancel()
			if err := client.Disconnect(ctx); err != nil {
				log.Error().Err(err).Msg("Failed to disconnect from MongoDB")
			}
		}

	default:
		return nil, nil, fmt.Errorf("unknown ledger backend %q", cfg.Ledger.Backend)
	}

	contract := ledger.New(store,
		ledger.WithDefaultIdentity(cfg.Ledger.DefaultIdentity),
		ledger.WithScanPolicy(policy),
		ledger.WithLogger(log.Logger.With().Str("component", "ledger").Logger()),
	)
	return services.NewLocalService(cfg.Ledger.Backend, contract, ledger.NewSequence(store)), closeFn, nil
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		})
	}

	if level <= zerolog.DebugLevel {
		log.Logger = log.With().Caller().Logger()
	}
}

func setupRouter(cfg *config.Config, h *handlers.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())
	router.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	h.Register(router)

	return router
}
