package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/spec-kit/ghe-token-broker/internal/api/gateway"
	httptransport "github.com/spec-kit/ghe-token-broker/internal/api/http"
	"github.com/spec-kit/ghe-token-broker/internal/api/http/handlers"
	"github.com/spec-kit/ghe-token-broker/internal/auth"
	"github.com/spec-kit/ghe-token-broker/internal/config"
	"github.com/spec-kit/ghe-token-broker/internal/events"
	"github.com/spec-kit/ghe-token-broker/internal/identity"
	"github.com/spec-kit/ghe-token-broker/internal/observability"
	"github.com/spec-kit/ghe-token-broker/internal/service"
	"github.com/spec-kit/ghe-token-broker/internal/worker"
	apperrors "github.com/spec-kit/ghe-token-broker/pkg/util/errorutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	configErr := cfg.Validate()
	if configErr != nil {
		var missing, invalid []string
		if cerr, ok := configErr.(*config.ConfigError); ok {
			missing, invalid = cerr.Missing, cerr.Invalid
		}
		logger.Error("configuration incomplete; broker will answer 500",
			zap.Strings("missing", missing),
			zap.Strings("invalid", invalid))
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	dispatcher := events.NewInMemoryDispatcher()
	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))

	routes := httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, configErr),
		Metrics: metrics,
	}

	var flows gateway.Flows
	var allowedOrigin string
	if configErr == nil {
		idp, err := identity.NewClient(identity.Config{
			BaseURL:      cfg.Identity.BaseURL,
			ClientID:     cfg.Identity.ClientID,
			ClientSecret: cfg.Identity.ClientSecret,
			Scopes:       cfg.Identity.Scopes,
			Timeout:      cfg.Identity.UpstreamTimeout(),
			VerifyTLS:    cfg.Identity.VerifyTLS,
		}, identity.WithLogger(logger.Named("identity")), identity.WithMetrics(metrics))
		if err != nil {
			logger.Fatal("failed to build identity client", zap.Error(err))
		}

		flows = service.NewBrokerService(cfg.Token, service.BrokerDependencies{
			Identity:   idp,
			Codec:      auth.NewCodec([]byte(cfg.Token.Secret)),
			Dispatcher: dispatcher,
			Logger:     logger.Named("broker"),
			Metrics:    metrics,
		})
		allowedOrigin, _ = cfg.Token.AllowedOrigin()
		routes.Login = handlers.NewLoginHandler(idp)
	}

	router := gateway.NewRouter(gateway.Options{
		Flows:         flows,
		RedirectURL:   cfg.Token.RedirectURL,
		AllowedOrigin: allowedOrigin,
		Logger:        logger.Named("gateway"),
		Metrics:       metrics,
		ConfigErr:     wrapConfigErr(configErr),
	})
	routes.Broker = handlers.NewBrokerHandler(router)

	app := httptransport.NewApp(cfg.App.Name, logger, cfg.App.RequestTimeout(), routes)

	go func() {
		logger.Info("listening", zap.String("addr", cfg.App.Addr()))
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

func wrapConfigErr(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.NewConfigError(err)
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
