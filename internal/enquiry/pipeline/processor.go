package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"enquiry-socket/internal/activity"
	companydomain "enquiry-socket/internal/company/domain"
	"enquiry-socket/internal/enquiry/upstream"
	"enquiry-socket/internal/security"
)

const instrumentationName = "enquiry-socket/internal/enquiry/pipeline"

var (
	errRejected    = errors.New("upstream rejected enquiry")
	errServerError = errors.New("upstream server error")
)

// CompanyLookup resolves the company a job belongs to.
type CompanyLookup interface {
	Resolve(ctx context.Context, publicKey string) (*companydomain.Company, error)
}

// Upstream is the part of the CRM and captcha client a worker needs.
type Upstream interface {
	VerifyCaptcha(ctx context.Context, secret, response, remoteIP string) (upstream.CaptchaResult, error)
	PostEnquiry(ctx context.Context, company *companydomain.Company, payload map[string]any) (upstream.PostResult, error)
}

// Invalidator drops a company's cached schema.
type Invalidator interface {
	Invalidate(ctx context.Context, companyID string) (bool, error)
}

// Config controls captcha handling and post retries.
type Config struct {
	CaptchaSecret string
	// CaptchaBypass accepts "mock-grecaptcha:<private key>" in place of a real captcha response.
	CaptchaBypass bool
	// PostRetries is how many times a 5xx or network failure is retried after the first attempt.
	PostRetries int
	// RetryInterval is the first backoff interval; later ones grow exponentially.
	RetryInterval time.Duration
}

// Processor runs a job through captcha verification and posting.
type Processor struct {
	companies   CompanyLookup
	upstream    Upstream
	invalidator Invalidator
	cfg         Config
	recorder    activity.Recorder
	observer    func(Job, State)
	tracer      trace.Tracer
	jobs        metric.Int64Counter
	logger      *slog.Logger
}

// Option configures a Processor.
type Option func(*Processor)

// WithRecorder sets where captcha_verify and enquiry_post events go.
func WithRecorder(r activity.Recorder) Option {
	return func(p *Processor) {
		if r != nil {
			p.recorder = r
		}
	}
}

// WithObserver registers fn to be called on every state transition.
func WithObserver(fn func(Job, State)) Option {
	return func(p *Processor) { p.observer = fn }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMeterProvider sets the meter provider for the job counter. Defaults to the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(p *Processor) {
		if mp != nil {
			p.jobs = newJobCounter(mp)
		}
	}
}

func newJobCounter(mp metric.MeterProvider) metric.Int64Counter {
	c, err := mp.Meter(instrumentationName).Int64Counter("enquiry.pipeline.jobs",
		metric.WithDescription("Enquiry jobs by terminal state"))
	if err != nil {
		otel.Handle(err)
		return noop.Int64Counter{}
	}
	return c
}

// NewProcessor returns a Processor. A negative PostRetries is treated as zero.
func NewProcessor(companies CompanyLookup, up Upstream, invalidator Invalidator, cfg Config, opts ...Option) *Processor {
	if cfg.PostRetries < 0 {
		cfg.PostRetries = 0
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 500 * time.Millisecond
	}
	p := &Processor{
		companies:   companies,
		upstream:    up,
		invalidator: invalidator,
		cfg:         cfg,
		recorder:    activity.Nop{},
		observer:    func(Job, State) {},
		tracer:      otel.Tracer(instrumentationName),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.jobs == nil {
		p.jobs = newJobCounter(otel.GetMeterProvider())
	}
	return p
}

// Handle adapts Process to a queue Handler.
func (p *Processor) Handle(ctx context.Context, job Job) {
	p.Process(ctx, job)
}

func (p *Processor) transition(job Job, s State) State {
	p.observer(job, s)
	return s
}

// Process delivers job and returns its terminal state. Captcha rejection never posts. A 4xx answer
// invalidates the company's cached schema and is not retried; 5xx and network failures are retried
// with exponential backoff up to PostRetries times and never invalidate.
func (p *Processor) Process(ctx context.Context, job Job) (final State) {
	ctx, span := p.tracer.Start(ctx, "pipeline.process", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("company.id", job.CompanyID),
	))
	defer func() {
		span.SetAttributes(attribute.String("job.state", string(final)))
		span.End()
		p.jobs.Add(ctx, 1, metric.WithAttributes(attribute.String("state", string(final))))
	}()
	log := p.logger.With("job_id", job.ID, "company_id", job.CompanyID)

	p.transition(job, StateQueued)
	company, err := p.companies.Resolve(ctx, job.CompanyPublicKey)
	if err != nil {
		log.Error("pipeline: company lookup failed, job dropped", "error", err)
		span.SetStatus(codes.Error, err.Error())
		return p.transition(job, StatePostFailed)
	}

	p.transition(job, StateVerifyingCaptcha)
	if !p.verifyCaptcha(ctx, log, job, company) {
		return p.transition(job, StateCaptchaRejected)
	}
	p.transition(job, StateCaptchaAccepted)

	p.transition(job, StatePostingEnquiry)
	return p.transition(job, p.post(ctx, log, job, company))
}

func (p *Processor) verifyCaptcha(ctx context.Context, log *slog.Logger, job Job, company *companydomain.Company) bool {
	response := job.Submission.GrecaptchaResponse
	if p.cfg.CaptchaBypass && security.IsCaptchaBypass(response, company.PrivateKey) {
		log.Info("pipeline: captcha bypassed")
		p.recorder.Record(ctx, activity.NewEvent(company.ID, activity.CaptchaVerify, map[string]any{"success": true, "bypass": true}))
		return true
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.verify_captcha")
	defer span.End()

	remoteIP := ""
	if job.Submission.IPAddress != nil {
		remoteIP = *job.Submission.IPAddress
	}
	res, err := p.upstream.VerifyCaptcha(ctx, p.cfg.CaptchaSecret, response, remoteIP)
	if err != nil {
		log.Warn("pipeline: captcha verification failed", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.recorder.Record(ctx, activity.NewEvent(company.ID, activity.CaptchaVerify, map[string]any{"success": false, "error": err.Error()}))
		return false
	}
	ok := res.Success
	if ok {
		if want := expectedHost(job); want != "" && res.Hostname != "" && !strings.EqualFold(res.Hostname, want) {
			log.Warn("pipeline: wrong captcha domain", "hostname", res.Hostname, "expected", want)
			ok = false
		}
	} else {
		log.Info("pipeline: captcha rejected")
	}
	span.SetAttributes(attribute.Bool("captcha.success", ok))
	p.recorder.Record(ctx, activity.NewEvent(company.ID, activity.CaptchaVerify, map[string]any{"success": ok, "hostname": res.Hostname}))
	return ok
}

// expectedHost is the host the captcha should have been solved on: the Origin's, else the Referer's.
func expectedHost(job Job) string {
	for _, raw := range []string{job.Submission.Origin, deref(job.Submission.HTTPReferrer)} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (p *Processor) post(ctx context.Context, log *slog.Logger, job Job, company *companydomain.Company) State {
	ctx, span := p.tracer.Start(ctx, "pipeline.post_enquiry")
	defer span.End()

	payload := job.Submission.Payload()
	var last upstream.PostResult
	attempts := 0
	op := func() (upstream.PostResult, error) {
		attempts++
		res, err := p.upstream.PostEnquiry(ctx, company, payload)
		last = res
		if err != nil {
			return res, err
		}
		switch {
		case res.OK():
			return res, nil
		case res.ClientError():
			return res, backoff.Permanent(errRejected)
		default:
			return res, fmt.Errorf("%w: status=%d", errServerError, res.StatusCode)
		}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.RetryInterval
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.cfg.PostRetries+1)),
	)
	span.SetAttributes(attribute.Int("http.status_code", last.StatusCode), attribute.Int("attempts", attempts))
	p.recorder.Record(ctx, activity.NewEvent(company.ID, activity.EnquiryPost, map[string]any{
		"status":   last.StatusCode,
		"url":      last.URL,
		"attempts": attempts,
	}))

	if err == nil {
		log.Info("pipeline: enquiry posted", "status", last.StatusCode, "url", last.URL)
		return StatePosted
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, errRejected) {
		log.Error(fmt.Sprintf("%d response posting to %s", last.StatusCode, last.URL), "body", last.Body)
		if _, ierr := p.invalidator.Invalidate(ctx, company.ID); ierr != nil {
			log.Error("pipeline: cache invalidation failed", "error", ierr)
		}
		return StatePostFailed
	}
	log.Error("pipeline: enquiry post failed", "status", last.StatusCode, "url", last.URL, "attempts", attempts, "error", err)
	return StatePostFailed
}
