// Package cache holds fetched enquiry form schemas per company and refreshes them from the CRM
// when they are missing or older than the configured TTL.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"enquiry-socket/internal/activity"
	companydomain "enquiry-socket/internal/company/domain"
	"enquiry-socket/internal/enquiry/domain"
)

const instrumentationName = "enquiry-socket/internal/enquiry/cache"

// Fetcher retrieves a company's current schema from the CRM.
type Fetcher interface {
	FetchSchema(ctx context.Context, company *companydomain.Company) (*domain.Schema, error)
}

// SchemaCache serves schemas from a Store and fetches them on miss or staleness. Concurrent misses
// for one company share a single fetch.
type SchemaCache struct {
	store    Store
	fetcher  Fetcher
	ttl      time.Duration
	now      func() time.Time
	group    singleflight.Group
	recorder activity.Recorder
	tracer   trace.Tracer
	fetches  metric.Int64Counter
}

// Option configures a SchemaCache.
type Option func(*SchemaCache)

// WithClock overrides the time source used for staleness.
func WithClock(now func() time.Time) Option {
	return func(c *SchemaCache) { c.now = now }
}

// WithRecorder sets where schema_fetch and cache_invalidate events go.
func WithRecorder(r activity.Recorder) Option {
	return func(c *SchemaCache) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithMeterProvider sets the meter provider for the fetch counter. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *SchemaCache) {
		if mp != nil {
			c.fetches = newFetchCounter(mp)
		}
	}
}

func newFetchCounter(mp metric.MeterProvider) metric.Int64Counter {
	counter, err := mp.Meter(instrumentationName).Int64Counter("enquiry.cache.fetches",
		metric.WithDescription("Upstream schema fetches"))
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return counter
}

// New returns a SchemaCache over store that fetches through fetcher. Entries older than ttl are refetched.
func New(store Store, fetcher Fetcher, ttl time.Duration, opts ...Option) *SchemaCache {
	c := &SchemaCache{
		store:    store,
		fetcher:  fetcher,
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
		recorder: activity.Nop{},
		tracer:   otel.Tracer(instrumentationName),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fetches == nil {
		c.fetches = newFetchCounter(otel.GetMeterProvider())
	}
	return c
}

func (c *SchemaCache) fresh(e Entry) bool {
	return e.Schema != nil && c.now().Sub(e.LastUpdated) <= c.ttl
}

// Get returns the company's schema, fetching it when the cached entry is missing or stale.
// If ctx is cancelled while a shared fetch is in flight, Get returns early; the fetch still completes
// and populates the cache.
func (c *SchemaCache) Get(ctx context.Context, company *companydomain.Company) (*domain.Schema, error) {
	e, ok, err := c.store.Get(ctx, company.ID)
	if err != nil {
		slog.WarnContext(ctx, "cache: read failed, fetching", "company_id", company.ID, "error", err)
	} else if ok && c.fresh(e) {
		return e.Schema, nil
	}

	ch := c.group.DoChan(company.ID, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx), company)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*domain.Schema), nil
	}
}

// refresh runs once per in-flight key. A caller that missed just as another flight completed finds
// the new entry here and skips the fetch.
func (c *SchemaCache) refresh(ctx context.Context, company *companydomain.Company) (*domain.Schema, error) {
	if e, ok, err := c.store.Get(ctx, company.ID); err == nil && ok && c.fresh(e) {
		return e.Schema, nil
	}

	ctx, span := c.tracer.Start(ctx, "cache.fetch_schema", trace.WithAttributes(attribute.String("company.id", company.ID)))
	defer span.End()

	schema, err := c.fetcher.FetchSchema(ctx, company)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.fetches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))
		c.recorder.Record(ctx, activity.NewEvent(company.ID, activity.SchemaFetch, map[string]any{"error": err.Error()}))
		return nil, fmt.Errorf("fetch schema: %w", err)
	}
	c.fetches.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "ok")))
	c.recorder.Record(ctx, activity.NewEvent(company.ID, activity.SchemaFetch, map[string]any{"count": schema.Count, "visible": len(schema.Visible)}))

	if err := c.Set(ctx, company.ID, schema); err != nil {
		slog.WarnContext(ctx, "cache: store failed", "company_id", company.ID, "error", err)
	}
	return schema, nil
}

// Set stores schema for companyID stamped with the current time.
func (c *SchemaCache) Set(ctx context.Context, companyID string, schema *domain.Schema) error {
	return c.store.Put(ctx, companyID, Entry{Schema: schema, LastUpdated: c.now()})
}

// Invalidate removes the company's entry and reports whether one existed. The next Get fetches.
func (c *SchemaCache) Invalidate(ctx context.Context, companyID string) (bool, error) {
	existed, err := c.store.Delete(ctx, companyID)
	if err != nil {
		return false, fmt.Errorf("invalidate: %w", err)
	}
	c.recorder.Record(ctx, activity.NewEvent(companyID, activity.CacheInvalidate, map[string]any{"existed": existed}))
	return existed, nil
}
