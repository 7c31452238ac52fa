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
	"go.uber.org/zap"

	"github.com/fedegimenez/inmate-state-ledger/internal/access"
	"github.com/fedegimenez/inmate-state-ledger/internal/backend"
	"github.com/fedegimenez/inmate-state-ledger/internal/config"
	"github.com/fedegimenez/inmate-state-ledger/internal/custody/handler"
	"github.com/fedegimenez/inmate-state-ledger/internal/custody/service"
	"github.com/fedegimenez/inmate-state-ledger/internal/identity"
	"github.com/fedegimenez/inmate-state-ledger/internal/ledger"
	"github.com/fedegimenez/inmate-state-ledger/internal/telemetry"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	if err := run(logger); err != nil {
		logger.Fatal("ledgerd exited with error", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	// ── Configuration ────────────────────────────────────────────────────────
	cfg, found, err := config.Load(config.New())
	if err != nil {
		return err
	}
	if !found {
		logger.Warn("no config file found, using defaults and env vars")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Tracing ──────────────────────────────────────────────────────────────
	shutdownTracing, err := telemetry.Setup(ctx, "ledgerd", cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			logger.Warn("tracing shutdown", zap.Error(err))
		}
	}()

	// ── Storage ──────────────────────────────────────────────────────────────
	be, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer be.Close()

	ctl := access.NewController(be.Roles, logger)
	if err := backend.Bootstrap(ctx, ctl, cfg.Bootstrap); err != nil {
		return err
	}

	// ── Ledger integrity ─────────────────────────────────────────────────────
	if cfg.VerifyOnStart {
		report, err := ledger.Verify(ctx, be.Ledger)
		if err != nil {
			logger.Warn("ledger integrity check FAILED", zap.Error(err))
		} else {
			logger.Info("ledger verified",
				zap.Int("records", report.Records),
				zap.Int("events", report.Events),
				zap.Stringer("root", report.Root),
			)
		}
	}

	// ── Identity ─────────────────────────────────────────────────────────────
	var tokens *identity.TokenIssuer
	if cfg.TokenSecret != "" {
		tokens, err = identity.NewTokenIssuer([]byte(cfg.TokenSecret), cfg.Issuer, cfg.TokenTTL)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("identity.token_secret is empty; trusting the " + identity.ActorHeader + " header")
	}

	// ── Services ─────────────────────────────────────────────────────────────
	engine := service.NewEngine(be.Ledger, ctl, logger)
	svc := service.NewService(engine)

	// ── HTTP Router ──────────────────────────────────────────────────────────
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(ctx, handler.RouterConfig{
		CORSOrigins:  cfg.CORSOrigins,
		RateLimitRPS: cfg.RateLimitRPS,
	}, handler.Handlers{
		Custody: handler.NewCustodyHandler(svc, logger),
		Ledger:  handler.NewLedgerHandler(be.Ledger, logger),
		Access:  handler.NewAccessHandler(ctl, logger),
		Auth:    identity.RequireActor(tokens),
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("ledgerd HTTP listening",
			zap.Int("port", cfg.Port),
			zap.String("storage", cfg.Storage),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	// ── Graceful shutdown ────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http listen: %w", err)
	}
	logger.Info("shutting down ledgerd...")

	sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error("HTTP shutdown error", zap.Error(err))
	}

	logger.Info("ledgerd stopped")
	return nil
}
