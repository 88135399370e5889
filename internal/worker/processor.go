package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rhobro/dr-pings-booty/internal/enrichment"
	"github.com/rhobro/dr-pings-booty/internal/provider/resilience"
	"github.com/rhobro/dr-pings-booty/internal/routing"
)

// Outcome tells the subscriber whether to acknowledge a message.
type Outcome int

const (
	// Ack removes the message: the job succeeded or can never succeed.
	Ack Outcome = iota
	// Nack asks for redelivery: the job failed on a transient upstream error.
	Nack
)

func (o Outcome) String() string {
	if o == Nack {
		return "nack"
	}
	return "ack"
}

// Decide maps the error of an enrichment to an Outcome.
func Decide(err error) Outcome {
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, routing.ErrProviderUnavailable),
		errors.Is(err, routing.ErrRateLimitExceeded),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, context.DeadlineExceeded):
		return Nack
	case errors.Is(err, enrichment.ErrInsufficientWaypoints),
		errors.Is(err, enrichment.ErrNoRoute):
		return Ack
	default:
		return Nack
	}
}

// Enricher runs one enrichment call.
type Enricher interface {
	Enrich(ctx context.Context, req enrichment.Request) (*enrichment.Result, error)
}

// Processor turns job messages into enrichment calls.
type Processor struct {
	enricher Enricher
	registry *resilience.Registry
	config   ProcessorConfig
	logger   zerolog.Logger
	metrics  *JobMetrics
}

// JobMetrics tracks job statistics.
type JobMetrics struct {
	mu sync.RWMutex

	// Counters
	Received  int64
	Succeeded int64
	Terminal  int64
	Retried   int64
	Malformed int64

	// Timings
	LastJobAt       time.Time
	LastJobDuration time.Duration
	TotalDuration   time.Duration
}

// ProcessorDeps holds the collaborators of a Processor.
type ProcessorDeps struct {
	Config   ProcessorConfig
	Enricher Enricher
	// Registry is consulted by health_check jobs (optional).
	Registry *resilience.Registry
	Logger   zerolog.Logger
}

// NewProcessor creates a new job processor.
func NewProcessor(deps ProcessorDeps) *Processor {
	return &Processor{
		enricher: deps.Enricher,
		registry: deps.Registry,
		config:   deps.Config.withDefaults(),
		logger:   deps.Logger,
		metrics:  &JobMetrics{},
	}
}

// Process handles one message body and reports whether to ack it.
// Malformed messages and unknown job types are acked so they are not
// redelivered forever.
func (p *Processor) Process(ctx context.Context, data []byte) Outcome {
	start := time.Now()

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		p.logger.Error().Err(err).Msg("failed to parse message")
		p.record(start, statusMalformed)
		return Ack
	}

	logger := p.logger.With().Str("job_type", msg.JobType).Logger()

	var st status
	switch msg.JobType {
	case JobEnrichRoute:
		var job EnrichJob
		if err := json.Unmarshal(msg.Request, &job); err != nil {
			logger.Error().Err(err).Msg("failed to parse enrich request")
			st = statusMalformed
			break
		}
		st = statusOf(p.enrich(ctx, logger, job))

	case JobEnrichBatch:
		var batch BatchJob
		if err := json.Unmarshal(msg.Request, &batch); err != nil {
			logger.Error().Err(err).Msg("failed to parse batch request")
			st = statusMalformed
			break
		}
		st = p.runBatch(ctx, logger, batch)

	case JobHealthCheck:
		if err := p.healthCheck(); err != nil {
			logger.Error().Err(err).Msg("health check failed")
			st = statusRetried
			break
		}
		st = statusSucceeded

	default:
		logger.Warn().Msg("unknown job type")
		st = statusMalformed
	}

	p.record(start, st)
	outcome := st.outcome()

	logger.Info().
		Str("outcome", outcome.String()).
		Dur("duration", time.Since(start)).
		Msg("job processed")

	return outcome
}

type status int

const (
	statusSucceeded status = iota
	statusTerminal
	statusRetried
	statusMalformed
)

func statusOf(err error) status {
	switch {
	case err == nil:
		return statusSucceeded
	case Decide(err) == Nack:
		return statusRetried
	default:
		return statusTerminal
	}
}

func (s status) outcome() Outcome {
	if s == statusRetried {
		return Nack
	}
	return Ack
}

func (p *Processor) enrich(ctx context.Context, logger zerolog.Logger, job EnrichJob) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.JobTimeout)
	defer cancel()

	result, err := p.enricher.Enrich(ctx, job.ToEnrichment())
	if err != nil {
		logger.Warn().
			Err(err).
			Int("location_count", len(job.Locations)).
			Msg("enrichment failed")
		return err
	}

	stats := result.Stats()
	logger.Info().
		Str("result_id", result.ID).
		Int("route_count", len(result.Routes)).
		Int("poi_count", stats.POIs).
		Int("road_count", stats.Roads).
		Msg("route enriched")
	return nil
}

// runBatch enriches batch entries with a bounded worker pool. The batch is
// retried when any entry failed transiently.
func (p *Processor) runBatch(ctx context.Context, logger zerolog.Logger, batch BatchJob) status {
	jobs := make(chan EnrichJob, len(batch.Jobs))
	results := make(chan status, len(batch.Jobs))

	var wg sync.WaitGroup
	for i := 0; i < p.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				select {
				case <-ctx.Done():
					results <- statusRetried
				default:
					results <- statusOf(p.enrich(ctx, logger, job))
				}
			}
		}()
	}

	for _, job := range batch.Jobs {
		jobs <- job
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	st := statusSucceeded
	var retried, terminal int
	for r := range results {
		switch r {
		case statusRetried:
			retried++
		case statusTerminal:
			terminal++
		}
	}
	switch {
	case retried > 0:
		st = statusRetried
	case terminal > 0:
		st = statusTerminal
	}

	logger.Info().
		Int("entries", len(batch.Jobs)).
		Int("retryable_failures", retried).
		Int("terminal_failures", terminal).
		Msg("batch completed")

	return st
}

func (p *Processor) healthCheck() error {
	if p.registry == nil || p.registry.ProviderCount() == 0 {
		return errors.New("no upstream providers registered")
	}

	degraded := p.registry.Degraded()
	if p.registry.AllOpen() {
		return fmt.Errorf("all upstream circuits open: %v", degraded)
	}
	if len(degraded) > 0 {
		p.logger.Warn().Strs("providers", degraded).Msg("upstreams degraded")
	}
	return nil
}

func (p *Processor) record(start time.Time, st status) {
	end := time.Now()
	duration := end.Sub(start)

	p.metrics.mu.Lock()
	defer p.metrics.mu.Unlock()

	p.metrics.Received++
	switch st {
	case statusSucceeded:
		p.metrics.Succeeded++
	case statusTerminal:
		p.metrics.Terminal++
	case statusRetried:
		p.metrics.Retried++
	case statusMalformed:
		p.metrics.Malformed++
	}
	p.metrics.LastJobAt = end
	p.metrics.LastJobDuration = duration
	p.metrics.TotalDuration += duration
}

// GetMetrics returns a copy of the current metrics.
func (p *Processor) GetMetrics() JobMetrics {
	p.metrics.mu.RLock()
	defer p.metrics.mu.RUnlock()

	return JobMetrics{
		Received:        p.metrics.Received,
		Succeeded:       p.metrics.Succeeded,
		Terminal:        p.metrics.Terminal,
		Retried:         p.metrics.Retried,
		Malformed:       p.metrics.Malformed,
		LastJobAt:       p.metrics.LastJobAt,
		LastJobDuration: p.metrics.LastJobDuration,
		TotalDuration:   p.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (p *Processor) MetricsSnapshot() map[string]interface{} {
	m := p.GetMetrics()
	return map[string]interface{}{
		"received":          m.Received,
		"succeeded":         m.Succeeded,
		"terminal":          m.Terminal,
		"retried":           m.Retried,
		"malformed":         m.Malformed,
		"last_job_at":       m.LastJobAt,
		"last_job_duration": m.LastJobDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
