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

	"cloud.google.com/go/pubsub"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sl-c19-memorial/memorial-web/internal/analytics"
	"github.com/sl-c19-memorial/memorial-web/internal/captcha"
	"github.com/sl-c19-memorial/memorial-web/internal/forms"
	"github.com/sl-c19-memorial/memorial-web/internal/geo"
	"github.com/sl-c19-memorial/memorial-web/internal/handlers"
	"github.com/sl-c19-memorial/memorial-web/internal/mail"
	"github.com/sl-c19-memorial/memorial-web/internal/platform/config"
	"github.com/sl-c19-memorial/memorial-web/internal/platform/observability"
	"github.com/sl-c19-memorial/memorial-web/internal/platform/secrets"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE:  runServe,
}

var requiredSecretNames = []string{"Mail.Token", "Captcha.Secret"}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	startedAt := time.Now().UTC()

	env, err := config.EnvironmentValues(config.WithEnvFile(envFile))
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}

	baseLogger, err := observability.NewLogger(env["MEMORIAL_LOG_LEVEL"])
	if err != nil {
		return fmt.Errorf("initialise logger: %w", err)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("memorial")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger, env)
	if err != nil {
		logger.Error("failed to initialise secret fetcher", zap.Error(err))
		return err
	}
	defer func() {
		if cerr := fetcher.Close(); cerr != nil {
			logger.Warn("failed to close secret fetcher", zap.Error(cerr))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithEnvFile(envFile),
		config.WithSecretResolver(fetcher),
		config.WithRequiredSecrets(requiredSecretNames...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Error("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		} else {
			logger.Error("failed to load configuration", zap.Error(err))
		}
		return err
	}

	dataset, err := geo.Load(ctx, cfg.Geo.DatasetURI, geo.WithDatasetOptions(
		geo.WithLocales(cfg.Site.Locales...),
		geo.WithCacheTTL(cfg.Geo.CacheTTL),
	))
	if err != nil {
		logger.Error("failed to load geo dataset", zap.String("uri", cfg.Geo.DatasetURI), zap.Error(err))
		return err
	}
	provinces, districts, cities := dataset.Counts()
	logger.Info("geo dataset loaded",
		zap.String("uri", cfg.Geo.DatasetURI),
		zap.Int("provinces", provinces),
		zap.Int("districts", districts),
		zap.Int("cities", cities),
	)

	sink, closeSink, err := newAnalyticsSink(ctx, cfg.Analytics)
	if err != nil {
		logger.Error("failed to initialise analytics sink", zap.Error(err))
		return err
	}
	defer closeSink()
	tracker := analytics.NewTracker(sink, analytics.WithLogger(logger.Named("analytics")))

	pipelines, err := newFormPipelines(cfg, logger)
	if err != nil {
		logger.Error("failed to initialise form pipelines", zap.Error(err))
		return err
	}

	resolver, err := handlers.NewLocaleResolver(cfg.Site.Locales, cfg.Site.DefaultLocale)
	if err != nil {
		logger.Error("invalid locale configuration", zap.Error(err))
		return err
	}

	geoHandlers := handlers.NewGeoHandlers(dataset, cfg.Site.DefaultLocale)
	filterHandlers := handlers.NewFilterHandlers(geoHandlers, handlers.WithFilterObserver(tracker))
	health := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfoFromEnv(env, cfg, startedAt)),
		handlers.WithReadinessCheck("geo", func(context.Context) error {
			if p, _, _ := dataset.Counts(); p == 0 {
				return errors.New("geo dataset is empty")
			}
			return nil
		}),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Analytics.ProjectID),
		observability.RequestLoggerMiddleware(),
		observability.RecoveryMiddleware(logger),
	}
	if cors := handlers.CORSMiddleware(cfg.Site.AllowedOrigins); cors != nil {
		middlewares = append(middlewares, cors)
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(health),
		handlers.WithFormMiddlewares(handlers.RateLimitMiddleware(cfg.RateLimits.FormsPerMinute, nil)),
		handlers.WithFormRoutes(handlers.FormRoutes(pipelines...)),
		handlers.WithAPIMiddlewares(resolver.Middleware),
		handlers.WithGeoRoutes(geoHandlers.Routes),
		handlers.WithFilterRoutes(filterHandlers.Routes),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting HTTP server",
			zap.String("addr", srv.Addr),
			zap.String("environment", cfg.Security.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
		if err := tracker.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("analytics drain: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}
	fallbackPath := lookup("MEMORIAL_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}
	return secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithDefaultProject(lookup("MEMORIAL_SECRET_PROJECT_ID")),
		secrets.WithFallbackFile(fallbackPath),
	)
}

// newAnalyticsSink returns a nil sink when no topic is configured; the tracker then logs events.
func newAnalyticsSink(ctx context.Context, cfg config.AnalyticsConfig) (analytics.Sink, func(), error) {
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	topic := client.Topic(cfg.Topic)
	sink, err := analytics.NewPubSubSink(topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return sink, func() {
		topic.Stop()
		_ = client.Close()
	}, nil
}

func newFormPipelines(cfg config.Config, logger *zap.Logger) ([]*forms.Pipeline, error) {
	defs := forms.DefaultDefinitions(cfg.Forms)
	if path := strings.TrimSpace(cfg.Forms.DefinitionsFile); path != "" {
		loaded, err := forms.LoadDefinitions(path)
		if err != nil {
			return nil, err
		}
		defs = loaded
	}

	mailer, err := mail.NewClient(cfg.Mail.Token,
		mail.WithBaseURL(cfg.Mail.APIURL),
		mail.WithTimeout(cfg.Mail.Timeout),
		mail.WithFrom(mail.Address{Address: cfg.Mail.FromAddress, Name: cfg.Mail.FromName}),
		mail.WithLogger(logger.Named("mail")),
	)
	if err != nil {
		return nil, err
	}

	verifier, err := captcha.NewVerifier(cfg.Captcha.Secret,
		captcha.WithVerifyURL(cfg.Captcha.VerifyURL),
		captcha.WithSiteKey(cfg.Captcha.SiteKey),
		captcha.WithTokenField(cfg.Captcha.TokenField),
		captcha.WithTimeout(cfg.Captcha.Timeout),
		captcha.WithLogger(logger.Named("captcha")),
	)
	if err != nil {
		return nil, err
	}

	pipelines := make([]*forms.Pipeline, 0, len(defs))
	for _, def := range defs {
		p, err := forms.NewPipeline(forms.Deps{
			Definition:   def,
			Mailer:       mailer,
			Captcha:      verifier,
			TokenField:   verifier.TokenField(),
			MaxBodyBytes: cfg.Forms.MaxBodyBytes,
			Logger:       logger.Named("forms"),
		})
		if err != nil {
			return nil, fmt.Errorf("form %q: %w", def.Name, err)
		}
		pipelines = append(pipelines, p)
	}
	return pipelines, nil
}

func buildInfoFromEnv(env map[string]string, cfg config.Config, started time.Time) handlers.BuildInfo {
	version := strings.TrimSpace(env["MEMORIAL_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["MEMORIAL_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Security.Environment)
	if environment == "" {
		environment = "local"
	}
	return handlers.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
