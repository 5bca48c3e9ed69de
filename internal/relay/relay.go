// Package relay is the reference queue consumer: it drains jobs from the
// mailer API and delivers them through a network provider.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sungwon/mpmail/internal/metrics"
	"github.com/sungwon/mpmail/internal/provider"
	"github.com/sungwon/mpmail/internal/queue"
)

// Source hands out claimed jobs.
type Source interface {
	Drain(ctx context.Context, limit int) (*queue.Batch, error)
}

// Config tunes a Relay. Zero values select defaults.
type Config struct {
	Interval      time.Duration
	BatchSize     int
	Concurrency   int
	RatePerSecond float64
	Burst         int
}

const (
	defaultInterval    = 15 * time.Second
	defaultConcurrency = 4
)

// Relay polls a Source and delivers each job. Retries happen in process
// only: a job that exhausts them, or fails permanently, is logged and
// dropped, since the queue no longer holds it.
type Relay struct {
	source   Source
	provider provider.Provider
	retry    *RetryStrategy
	limiter  *rate.Limiter
	cfg      Config
	log      zerolog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Relay.
func New(src Source, p provider.Provider, retry *RetryStrategy, cfg Config, log zerolog.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = queue.DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &Relay{
		source:   src,
		provider: p,
		retry:    retry,
		limiter:  limiter,
		cfg:      cfg,
		log:      log.With().Str("component", "relay").Str("provider", p.GetName()).Logger(),
		sleep:    sleepCtx,
	}
}

// Run polls until ctx is cancelled. A full batch is followed by another
// poll right away; otherwise the relay waits for the interval.
//
// In-flight deliveries are not cancelled with ctx: a drained job has no
// other copy, so the current batch is always finished before Run returns.
func (r *Relay) Run(ctx context.Context) error {
	r.log.Info().
		Dur("interval", r.cfg.Interval).
		Int("batch_size", r.cfg.BatchSize).
		Int("concurrency", r.cfg.Concurrency).
		Msg("relay started")

	for {
		n, err := r.PollOnce(ctx)
		if ctx.Err() != nil {
			r.log.Info().Msg("relay stopped")
			return nil
		}
		if err != nil {
			metrics.RelayPollErrorsTotal.Inc()
			r.log.Error().Err(err).Msg("drain poll failed")
		}
		if err == nil && n >= r.cfg.BatchSize {
			continue
		}
		if err := r.sleep(ctx, r.cfg.Interval); err != nil {
			r.log.Info().Msg("relay stopped")
			return nil
		}
	}
}

// PollOnce drains one batch and delivers it. It returns the number of jobs
// received.
func (r *Relay) PollOnce(ctx context.Context) (int, error) {
	batch, err := r.source.Drain(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if batch.Returned == 0 {
		return 0, nil
	}
	r.log.Info().Int("jobs", len(batch.Jobs)).Msg("batch claimed")

	deliverCtx := context.WithoutCancel(ctx)
	var g errgroup.Group
	g.SetLimit(r.cfg.Concurrency)
	for i := range batch.Jobs {
		job := batch.Jobs[i]
		g.Go(func() error {
			r.deliver(deliverCtx, &job)
			return nil
		})
	}
	_ = g.Wait()
	return len(batch.Jobs), nil
}

// deliver sends one job, retrying transient failures.
func (r *Relay) deliver(ctx context.Context, job *queue.Job) {
	log := r.log.With().Str("job_id", job.ID).Logger()
	msg := MessageFromJob(job)

	for attempt := 0; ; attempt++ {
		if err := r.limiter.Wait(ctx); err != nil {
			log.Error().Err(err).Msg("rate limiter wait failed, job dropped")
			metrics.RelayDeliveriesTotal.WithLabelValues("exhausted").Inc()
			return
		}

		res, err := r.provider.Send(ctx, msg)
		if err == nil {
			log.Info().
				Str("provider_message_id", res.ProviderMessageID).
				Int("attempts", attempt+1).
				Msg("job delivered")
			metrics.RelayDeliveriesTotal.WithLabelValues("delivered").Inc()
			return
		}

		if provider.IsPermanent(err) {
			var pe *provider.ProviderError
			_ = errors.As(err, &pe)
			log.Error().Err(err).Str("detail", pe.Detail).Msg("permanent delivery failure, job dropped")
			metrics.RelayDeliveriesTotal.WithLabelValues("permanent").Inc()
			return
		}
		if !r.retry.ShouldRetry(attempt) {
			log.Error().Err(err).Int("attempts", attempt+1).Msg("retries exhausted, job dropped")
			metrics.RelayDeliveriesTotal.WithLabelValues("exhausted").Inc()
			return
		}

		backoff := r.retry.NextBackoff(attempt)
		log.Warn().Err(err).Dur("backoff", backoff).Int("attempt", attempt+1).Msg("transient delivery failure, retrying")
		metrics.RelayRetriesTotal.Inc()
		if err := r.sleep(ctx, backoff); err != nil {
			return
		}
	}
}

// MessageFromJob converts a drained job into a provider message. The job
// ID is kept so providers reuse it as the Message-ID.
func MessageFromJob(job *queue.Job) *provider.Message {
	return &provider.Message{
		ID:       job.ID,
		To:       provider.Recipients(job.To),
		Cc:       provider.Recipients(job.Cc),
		Bcc:      provider.Recipients(job.Bcc),
		Subject:  job.Subject,
		Text:     job.Text,
		HTML:     job.HTML,
		From:     job.From,
		FromName: job.FromName,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
