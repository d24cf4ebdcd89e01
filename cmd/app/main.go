package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"course-platform-payments/internal/config"
	"course-platform-payments/internal/domain/ports/adapter"
	cpn "course-platform-payments/internal/infra/coupon"
	pg "course-platform-payments/internal/infra/db/postgres"
	ent "course-platform-payments/internal/infra/entitlement"
	"course-platform-payments/internal/infra/logging"
	"course-platform-payments/internal/infra/metrics"
	pay "course-platform-payments/internal/infra/payment"
	red "course-platform-payments/internal/infra/redis"
	"course-platform-payments/internal/infra/sched"
	"course-platform-payments/internal/infra/web"
	"course-platform-payments/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (relaxed validation, noop collaborators)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connect failed")
	}
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	txm := pg.NewTxManager(pool)
	paymentRepo := pg.NewPaymentRepo(pool)
	courseRepo := pg.NewCourseRepo(pool)
	planRepo := pg.NewPlanRepo(pool)
	rateRepo := pg.NewExchangeRateRepo(pool)

	// ---- Provider gateways ----
	paypalGW := pay.NewPayPalGateway(cfg.Payment.PayPal)
	mpGW := pay.NewMercadoPagoGateway(cfg.Payment.MercadoPago)
	gateways := map[string]adapter.ProviderGateway{
		paypalGW.Name(): paypalGW,
		mpGW.Name():     mpGW,
	}
	verifiers := map[string]adapter.WebhookVerifier{
		paypalGW.Name(): pay.NewPayPalWebhookVerifier(paypalGW, cfg.Payment.PayPal.WebhookID, logger),
		mpGW.Name():     pay.NewMercadoPagoWebhookVerifier(cfg.Payment.MercadoPago.WebhookSecret),
	}

	// ---- Platform collaborators ----
	var entitlementSvc adapter.EntitlementService
	if cfg.Entitlement.BaseURL != "" {
		entitlementSvc = ent.NewHTTPEntitlementService(cfg.Entitlement)
	} else if cfg.Runtime.Dev {
		entitlementSvc = ent.NewNoopEntitlementService(logger)
	} else {
		logger.Fatal().Msg("entitlement.base_url is required outside dev mode")
	}
	couponAuthority := cpn.NewHTTPCouponAuthority(cfg.Coupon)

	// ---- Use cases ----
	pricingUC := usecase.NewPricingUseCase(courseRepo, planRepo, rateRepo, logger)
	couponUC := usecase.NewCouponUseCase(couponAuthority, logger)
	checkoutUC := usecase.NewCheckoutUseCase(pricingUC, couponUC, paymentRepo, gateways, entitlementSvc, logger)
	reconcileUC := usecase.NewReconcileUseCase(paymentRepo, txm, gateways, verifiers, entitlementSvc, locker, logger)

	// ---- HTTP server ----
	srv := web.NewServer(checkoutUC, reconcileUC, cfg.Server.JWTSecret, logger)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: srv.Router(cfg.Server.RequestTimeout),
	}
	go func() {
		logger.Info().Str("addr", server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("http server error")
		}
	}()

	// ---- Stale-order sweeper ----
	sweeper := sched.NewStaleOrderSweeper(reconcileUC, paymentRepo, cfg.Sweeper.Interval, cfg.Sweeper.StaleAfter, logger)
	go sweeper.Start(ctx)

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	logger.Info().Msg("shutdown requested")
	cancel()
	_ = server.Shutdown(context.Background())
}
