package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sungwon/mpmail/internal/metrics"
	"github.com/sungwon/mpmail/internal/msgstore"
)

const (
	// DefaultBatchSize is used when a drain request names no limit.
	DefaultBatchSize = 25
	// MaxBatchSize bounds a single drain call.
	MaxBatchSize = 500

	// QuarantinePrefix marks records that could not be decoded. Drains
	// skip these keys; they stay in the store for manual recovery.
	QuarantinePrefix = "quarantine-"
)

// ErrStoreUnavailable is returned when the key listing fails. Nothing is
// claimed in that case.
var ErrStoreUnavailable = errors.New("queue: store unavailable")

// Batch is the result of one drain call.
type Batch struct {
	Jobs     []Job `json:"jobs"`
	Returned int   `json:"returned"`
}

// DrainConfig tunes a Drainer. Zero values select the package defaults.
type DrainConfig struct {
	DefaultBatchSize int `mapstructure:"default_batch_size"`
	MaxBatchSize     int `mapstructure:"max_batch_size"`
}

// Drainer claims jobs from the store and hands them to the caller.
//
// Claiming is fetch-and-remove: a job is returned only when this call's own
// Delete removed it, so no two drains ever return the same job. There is no
// lease. A consumer that loses a batch after the response is sent loses it.
type Drainer struct {
	store        msgstore.Store
	log          zerolog.Logger
	defaultLimit int
	maxLimit     int
}

// NewDrainer creates a Drainer over store.
func NewDrainer(store msgstore.Store, cfg DrainConfig, log zerolog.Logger) *Drainer {
	d := &Drainer{
		store:        store,
		log:          log,
		defaultLimit: cfg.DefaultBatchSize,
		maxLimit:     cfg.MaxBatchSize,
	}
	if d.maxLimit <= 0 {
		d.maxLimit = MaxBatchSize
	}
	if d.defaultLimit <= 0 {
		d.defaultLimit = DefaultBatchSize
	}
	if d.defaultLimit > d.maxLimit {
		d.defaultLimit = d.maxLimit
	}
	return d
}

// Limit resolves a requested batch size: non-positive means the default,
// anything above the cap is clamped.
func (d *Drainer) Limit(requested int) int {
	switch {
	case requested <= 0:
		return d.defaultLimit
	case requested > d.maxLimit:
		return d.maxLimit
	}
	return requested
}

// Drain claims up to limit jobs. Per-key failures are logged and skipped;
// only a failed key listing fails the call.
func (d *Drainer) Drain(ctx context.Context, limit int) (*Batch, error) {
	start := time.Now()
	defer func() { metrics.QueueDrainDuration.Observe(time.Since(start).Seconds()) }()

	limit = d.Limit(limit)

	keys, err := d.store.Keys(ctx)
	if err != nil {
		metrics.QueueDrainErrorsTotal.Inc()
		d.log.Error().Err(err).Msg("drain: list keys failed")
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	keys, quarantined := pendingKeys(keys)
	if len(keys) > limit {
		keys = keys[:limit]
	}

	batch := &Batch{Jobs: make([]Job, 0, len(keys))}
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			d.log.Warn().Err(err).Int("returned", len(batch.Jobs)).Msg("drain: interrupted")
			break
		}
		job, err := d.claim(ctx, key)
		if errors.Is(err, errQuarantined) {
			quarantined++
		}
		if job != nil {
			batch.Jobs = append(batch.Jobs, *job)
		}
	}
	batch.Returned = len(batch.Jobs)
	metrics.QueueQuarantinedRecords.Set(float64(quarantined))

	metrics.QueueDrainedTotal.Add(float64(batch.Returned))
	d.log.Info().
		Int("limit", limit).
		Int("listed", len(keys)).
		Int("returned", batch.Returned).
		Int("quarantined", quarantined).
		Msg("drain completed")
	return batch, nil
}

var errQuarantined = errors.New("queue: record quarantined")

// pendingKeys drops quarantined keys from a listing and counts them.
func pendingKeys(keys []string) ([]string, int) {
	pending := keys[:0:0]
	quarantined := 0
	for _, key := range keys {
		if strings.HasPrefix(key, QuarantinePrefix) {
			quarantined++
			continue
		}
		pending = append(pending, key)
	}
	return pending, quarantined
}

// claim reads, decodes and removes one key. A job is returned only when the
// Delete issued here removed the record. Skips return a nil job; the error
// is errQuarantined when an undecodable record was moved aside.
func (d *Drainer) claim(ctx context.Context, key string) (*Job, error) {
	log := d.log.With().Str("key", key).Logger()

	data, err := d.store.Get(ctx, key)
	if errors.Is(err, msgstore.ErrNotFound) {
		metrics.QueueDrainSkipsTotal.WithLabelValues("not_found").Inc()
		log.Debug().Msg("drain: record already claimed")
		return nil, nil
	}
	if err != nil {
		metrics.QueueDrainSkipsTotal.WithLabelValues("read_failed").Inc()
		log.Warn().Err(err).Msg("drain: read failed, skipping")
		return nil, nil
	}

	job, err := DecodeJob(data)
	if err != nil {
		metrics.QueueDrainSkipsTotal.WithLabelValues("decode_failed").Inc()
		log.Error().Err(err).Msg("drain: undecodable record")
		if d.quarantine(ctx, key, data) {
			return nil, errQuarantined
		}
		return nil, nil
	}

	removed, err := d.store.Delete(ctx, key)
	if err != nil {
		metrics.QueueDrainSkipsTotal.WithLabelValues("delete_failed").Inc()
		log.Error().Err(err).Str("job_id", job.ID).Msg("drain: delete failed after read, record may be lost")
		return nil, nil
	}
	if !removed {
		metrics.QueueDrainSkipsTotal.WithLabelValues("already_claimed").Inc()
		log.Debug().Msg("drain: record already claimed")
		return nil, nil
	}
	return job, nil
}

// quarantine copies an undecodable record under QuarantinePrefix and then
// removes the original, so later drains stop listing it as pending. On any
// failure the original stays where it is.
func (d *Drainer) quarantine(ctx context.Context, key string, data []byte) bool {
	log := d.log.With().Str("key", key).Logger()

	target := QuarantinePrefix + key
	if err := d.store.Put(ctx, target, data); err != nil && !errors.Is(err, msgstore.ErrExists) {
		log.Error().Err(err).Msg("drain: quarantine write failed, record left in place")
		return false
	}
	if _, err := d.store.Delete(ctx, key); err != nil {
		log.Error().Err(err).Msg("drain: quarantine delete failed, record stored twice")
		return false
	}
	log.Warn().Str("quarantine_key", target).Msg("drain: undecodable record quarantined")
	return true
}
