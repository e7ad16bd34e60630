// Command siteauthd serves the siteauth HTTP API.
//
// Configuration is read from the YAML file named by -config, a .env file in
// the working directory and SITEAUTH_* environment variables, in that order.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aimbuild/siteauth"
	"github.com/aimbuild/siteauth/internal/audit"
	"github.com/aimbuild/siteauth/internal/config"
	"github.com/aimbuild/siteauth/internal/httpapi"
	"github.com/aimbuild/siteauth/internal/logging"
	otelexport "github.com/aimbuild/siteauth/metrics/export/otel"
	promexport "github.com/aimbuild/siteauth/metrics/export/prometheus"
	"github.com/aimbuild/siteauth/notify"
	"github.com/aimbuild/siteauth/storage/memory"
	"github.com/aimbuild/siteauth/storage/postgres"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "siteauth.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(2)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("siteauthd stopped", zap.Error(err))
		os.Exit(1)
	}
}

// closers run in reverse order on shutdown.
type closers []func()

func (c *closers) add(fn func()) { *c = append(*c, fn) }

func (c closers) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var cleanup closers
	defer cleanup.run()

	accounts, companies, err := openStorage(ctx, cfg, logger, &cleanup)
	if err != nil {
		return err
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	cleanup.add(func() { _ = rdb.Close() })
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}
	sink, err := buildAuditSink(cfg, logger, &cleanup)
	if err != nil {
		return err
	}

	builder := siteauth.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithAccountStore(accounts).
		WithCompanyDirectory(companies).
		WithNotifier(notifier).
		WithLogger(logger.Named("engine"))
	if sink != nil {
		builder = builder.WithAuditSink(sink)
	}
	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	cleanup.add(engine.Close)

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		metricsHandler = promexport.NewExporter(engine).Handler()

		provider := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(provider)
		exporter, err := otelexport.NewExporter(provider.Meter("github.com/aimbuild/siteauth"), engine)
		if err != nil {
			return fmt.Errorf("register otel metrics: %w", err)
		}
		cleanup.add(func() {
			_ = exporter.Close()
			_ = provider.Shutdown(context.Background())
		})
	}

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: httpapi.NewRouter(httpapi.Options{
			Service:          engine,
			Logger:           logger.Named("http"),
			Metrics:          metricsHandler,
			CORSOrigins:      cfg.HTTP.CORSOrigins,
			TrustProxy:       cfg.HTTP.TrustProxy,
			SecureCookies:    cfg.Production(),
			RefreshCookieTTL: cfg.Tokens.RefreshTTL,
		}),
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr), zap.String("env", cfg.Env))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

type companySeeder interface {
	CreateCompany(ctx context.Context, id, name string) error
}

func openStorage(ctx context.Context, cfg config.Config, logger *zap.Logger, cleanup *closers) (siteauth.AccountStore, siteauth.CompanyDirectory, error) {
	var (
		accounts  siteauth.AccountStore
		companies interface {
			siteauth.CompanyDirectory
			companySeeder
		}
	)

	if cfg.Database.URL == "" {
		logger.Warn("no database configured, accounts are kept in memory")
		accounts = memory.NewAccountStore()
		companies = memory.NewCompanyDirectory()
	} else {
		db, err := postgres.Open(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, err
		}
		cleanup.add(func() { _ = db.Close() })
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)

		if cfg.Database.MigrateOnStart {
			if err := postgres.Migrate(ctx, db); err != nil {
				return nil, nil, err
			}
		}
		accounts = postgres.NewAccountStore(db)
		companies = postgres.NewCompanyDirectory(db)
	}

	if cfg.Company.ID != "" {
		if err := companies.CreateCompany(ctx, cfg.Company.ID, cfg.Company.Name); err != nil {
			return nil, nil, fmt.Errorf("seed company: %w", err)
		}
	}
	return accounts, companies, nil
}

func buildNotifier(cfg config.Config, logger *zap.Logger) (siteauth.Notifier, error) {
	if cfg.Mail.Driver == "log" {
		return notify.NewLogNotifier(logger.Named("mail"), !cfg.Production()), nil
	}
	transport, err := notify.NewSMTPTransport(notify.SMTPConfig{
		Host:        cfg.Mail.SMTPHost,
		Port:        cfg.Mail.SMTPPort,
		Username:    cfg.Mail.SMTPUsername,
		Password:    cfg.Mail.SMTPPassword,
		ImplicitTLS: cfg.Mail.ImplicitTLS,
		Timeout:     10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp transport: %w", err)
	}
	mailer, err := notify.NewMailer(transport, notify.MailerConfig{From: cfg.Mail.From, Brand: cfg.Mail.Brand}, logger.Named("mail"))
	if err != nil {
		return nil, err
	}
	return mailer, nil
}

// buildAuditSink returns nil when auditing is off.
func buildAuditSink(cfg config.Config, logger *zap.Logger, cleanup *closers) (siteauth.AuditSink, error) {
	switch cfg.Audit.Sink {
	case "log":
		return audit.NewZapSink(logger.Named("audit")), nil
	case "kafka":
		sink, err := audit.NewKafkaSink(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic, logger.Named("audit"))
		if err != nil {
			return nil, err
		}
		cleanup.add(func() { _ = sink.Close() })
		return sink, nil
	default:
		return nil, nil
	}
}
