// Package worker processes enrichment jobs delivered over Pub/Sub.
package worker

import (
	"encoding/json"
	"time"

	"github.com/rhobro/dr-pings-booty/internal/enrichment"
	"github.com/rhobro/dr-pings-booty/internal/routing"
)

// Job types understood by the worker.
const (
	JobEnrichRoute = "enrich_route"
	JobEnrichBatch = "enrich_batch"
	JobHealthCheck = "health_check"
)

// Message is the envelope of every job message.
type Message struct {
	JobType string          `json:"job_type"`
	Request json.RawMessage `json:"request,omitempty"`
}

// EnrichJob is the request of an enrich_route job.
type EnrichJob struct {
	Locations     []enrichment.Location `json:"locations"`
	SearchRadiusM int                   `json:"search_radius_m,omitempty"`
	Preferences   routing.Preferences   `json:"preferences"`
}

// ToEnrichment converts the job to the service input.
func (j EnrichJob) ToEnrichment() enrichment.Request {
	return enrichment.Request{
		Locations:          j.Locations,
		SearchRadiusMeters: j.SearchRadiusM,
		Preferences:        j.Preferences,
	}
}

// BatchJob is the request of an enrich_batch job.
type BatchJob struct {
	Jobs []EnrichJob `json:"jobs"`
}

// ProcessorConfig tunes job processing.
type ProcessorConfig struct {
	// Concurrency is the number of batch entries enriched at once.
	// Default: 2
	Concurrency int

	// JobTimeout bounds a single enrichment.
	// Default: 5 minutes
	JobTimeout time.Duration
}

// DefaultProcessorConfig returns the default processing configuration.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		Concurrency: 2,
		JobTimeout:  5 * time.Minute,
	}
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	d := DefaultProcessorConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = d.Concurrency
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = d.JobTimeout
	}
	return c
}
