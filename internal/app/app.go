// Package app builds the components shared by the server and worker commands from Config.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"enquiry-socket/internal/activity"
	companyrepo "enquiry-socket/internal/company/repository"
	companyservice "enquiry-socket/internal/company/service"
	"enquiry-socket/internal/config"
	"enquiry-socket/internal/db"
	"enquiry-socket/internal/enquiry/cache"
	"enquiry-socket/internal/enquiry/pipeline"
	"enquiry-socket/internal/enquiry/upstream"
	"enquiry-socket/internal/telemetry"
	telemetryotel "enquiry-socket/internal/telemetry/otel"
)

const retryInterval = 500 * time.Millisecond

// App holds the wired components. Close releases them in reverse order of construction.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Providers *telemetryotel.Providers
	DB        *sql.DB
	Companies *companyservice.Resolver
	Schemas   *cache.SchemaCache
	Upstream  *upstream.Client
	Recorder  activity.Recorder
	Processor *pipeline.Processor
}

// New wires telemetry, the database, the company resolver, the schema cache and the processor.
func New(ctx context.Context, cfg *config.Config, component string) (*App, error) {
	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("otel: %w", err)
	}
	providers.SetGlobal()

	lp := providers.LoggerProvider
	if !providers.Exporting() {
		lp = nil
	}
	logger := telemetry.SetupLogging(os.Stderr, cfg.LogLevel, cfg.ServiceName, lp).With(slog.String("component", component))

	a := &App{Config: cfg, Logger: logger, Providers: providers}

	a.DB, err = db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("db: %w", err)
	}
	a.Companies = companyservice.NewResolver(companyrepo.NewPostgresRepository(a.DB), cfg.CompanyTTL())

	recorders := []activity.Recorder{activity.NewOTelRecorder(lp)}
	if cfg.LokiURL != "" {
		recorders = append(recorders, activity.NewLokiRecorder(cfg.LokiURL, cfg.ServiceName))
	}
	a.Recorder = activity.Async(activity.Multi(recorders...))

	var store cache.Store = cache.NewMemoryStore()
	if cfg.EnquiryCacheBackend == "postgres" {
		store = cache.NewPostgresStore(a.DB)
	}
	a.Upstream = upstream.NewClient(cfg.EnquiryURL(), cfg.GrecaptchaURL, cfg.UpstreamCallTimeout())
	a.Schemas = cache.New(store, a.Upstream, cfg.EnquiryTTL(),
		cache.WithRecorder(a.Recorder),
		cache.WithMeterProvider(providers.MeterProvider),
	)
	a.Processor = pipeline.NewProcessor(a.Companies, a.Upstream, a.Schemas,
		pipeline.Config{
			CaptchaSecret: cfg.GrecaptchaSecret,
			CaptchaBypass: cfg.CaptchaBypassEnabled,
			PostRetries:   cfg.PipelinePostRetries,
			RetryInterval: retryInterval,
		},
		pipeline.WithRecorder(a.Recorder),
		pipeline.WithLogger(logger),
		pipeline.WithMeterProvider(providers.MeterProvider),
	)
	return a, nil
}

// Close stops the resolver, closes the database and flushes telemetry. Waiting for in-flight
// activity records is the caller's job.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Companies != nil {
		a.Companies.Close()
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	if a.Providers != nil {
		errs = append(errs, a.Providers.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
