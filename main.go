package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"pdv_backend/api"
	"pdv_backend/internal/catalog"
	"pdv_backend/internal/config"
	"pdv_backend/internal/database"
	"pdv_backend/internal/fiscal"
	"pdv_backend/internal/sales"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("error loading configuration: %v", err))
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(fmt.Errorf("error building logger: %v", err))
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped with error", zap.Error(err))
	}
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Env == "development" {
		zcfg = zap.NewDevelopmentConfig()
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL %q: %w", cfg.LogLevel, err)
	}
	zcfg.Level = level
	return zcfg.Build()
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("database ready", zap.String("driver", cfg.Database.Driver))

	gateway, closeGateway, err := newGateway(cfg.Fiscal, logger)
	if err != nil {
		return err
	}
	defer closeGateway()

	profile, err := fiscal.LoadTaxProfile(cfg.Fiscal.TaxProfilePath)
	if err != nil {
		return err
	}

	if missing := cfg.Fiscal.Missing(); len(missing) > 0 {
		logger.Warn("fiscal configuration incomplete, NFC-e emission will fail until it is set",
			zap.Strings("missing", missing))
	}

	catalogService := catalog.NewService(catalog.NewSQLStorage(db), logger.Named("catalog"))
	salesStorage := sales.NewSQLStorage(db)
	services := api.Services{
		Catalog: catalogService,
		Sales:   sales.NewService(salesStorage, catalogService, logger.Named("sales")),
		Fiscal:  fiscal.NewService(salesStorage, gateway, cfg.Fiscal, profile, logger.Named("fiscal")),
	}

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(services, logger.Named("http"))

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      corsHandler(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Fiscal.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr), zap.String("fiscal_gateway", cfg.Fiscal.Gateway))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("error trying to start server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Fiscal.Timeout+5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newGateway(cfg config.Fiscal, logger *zap.Logger) (fiscal.Gateway, func(), error) {
	switch cfg.Gateway {
	case config.GatewayRemote:
		g := fiscal.NewRemoteGateway(cfg.GatewayURL, cfg.GatewayToken, cfg.Timeout, logger.Named("gateway"))
		return g, func() { _ = g.Close() }, nil
	case config.GatewayFake:
		g, err := fiscal.NewFakeGateway(strings.ToLower(cfg.FakeOutcome))
		if err != nil {
			return nil, nil, err
		}
		logger.Warn("using the fake fiscal gateway, no document reaches SEFAZ", zap.String("outcome", g.Outcome))
		return g, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unsupported fiscal gateway %q", cfg.Gateway)
}
