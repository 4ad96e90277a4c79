package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmorland/securepay-backend/internal/api/rest"
	"github.com/jmorland/securepay-backend/internal/infrastructure/config"
	"github.com/jmorland/securepay-backend/internal/infrastructure/postgres"
	"github.com/jmorland/securepay-backend/internal/infrastructure/telemetry"
	"github.com/jmorland/securepay-backend/internal/service/auditlog"
	"github.com/jmorland/securepay-backend/internal/service/identity"
	invsvc "github.com/jmorland/securepay-backend/internal/service/investigation"
	"github.com/jmorland/securepay-backend/internal/service/ledger"
	policysvc "github.com/jmorland/securepay-backend/internal/service/policy"
	"github.com/jmorland/securepay-backend/internal/service/risk"
	"github.com/jmorland/securepay-backend/internal/service/velocity"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := telemetry.SetupLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelCfg := telemetry.DefaultConfig()
	otelCfg.Environment = cfg.Environment
	otelCfg.ServiceVersion = cfg.Version
	otelCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	provider, err := telemetry.Initialize(ctx, otelCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	db, err := postgres.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	store := postgres.NewStore(db)
	accounts := postgres.NewAccountRepository(store)
	transactions := postgres.NewTransactionRepository(store)
	cases := postgres.NewCaseRepository(store)
	auditRepo := postgres.NewAuditRepository(store)
	settingsRepo := postgres.NewSettingsRepository(store)

	auditor := auditlog.NewWriter(auditRepo, logger)
	trail := auditlog.NewTrail(auditRepo, accounts)
	scorer := risk.NewLogisticScorer()
	riskSvc := risk.NewService(scorer, settingsRepo, logger)
	velocityChecker := velocity.NewChecker(transactions)

	ledgerSvc := ledger.NewService(
		accounts, transactions, cases, store,
		riskSvc, velocityChecker, settingsRepo, auditor, logger,
	)
	investigationSvc := invsvc.NewService(cases, accounts, transactions, store, auditor, logger)
	identitySvc := identity.NewService(accounts, settingsRepo, auditor, logger)
	policySvc := policysvc.NewService(settingsRepo, accounts, auditor, logger)

	handler := rest.NewHandler(identitySvc, ledgerSvc, investigationSvc, policySvc, trail, logger)
	server := rest.NewServer(cfg.Server, handler, logger)

	logger.Info("starting securepay backend",
		"version", cfg.Version,
		"environment", cfg.Environment,
	)
	return server.Run(ctx, cfg.Server.ShutdownTimeout)
}
