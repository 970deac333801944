// Package metrics provides Prometheus metrics for resumable uploads.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Upload outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Collector holds the upload metrics. A nil *Collector is valid and records nothing.
type Collector struct {
	PartsUploaded prometheus.Counter
	PartsFailed   prometheus.Counter
	PartsSkipped  prometheus.Counter
	BytesUploaded prometheus.Counter
	Uploads       *prometheus.CounterVec
	Resumes       prometheus.Counter
}

// New creates a Collector and registers it on reg. A nil reg skips registration.
func New(namespace string, reg prometheus.Registerer) (*Collector, error) {
	if namespace == "" {
		namespace = "resumable_upload"
	}

	c := &Collector{
		PartsUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parts_uploaded_total",
			Help:      "Number of parts uploaded successfully.",
		}),
		PartsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parts_failed_total",
			Help:      "Number of part uploads that failed.",
		}),
		PartsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parts_skipped_total",
			Help:      "Number of part uploads skipped because another part already failed.",
		}),
		BytesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_uploaded_total",
			Help:      "Number of source bytes uploaded.",
		}),
		Uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Number of upload attempts by outcome.",
		}, []string{"outcome"}),
		Resumes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resumed_uploads_total",
			Help:      "Number of upload attempts resumed from a checkpoint.",
		}),
	}

	if reg != nil {
		for _, collector := range []prometheus.Collector{
			c.PartsUploaded, c.PartsFailed, c.PartsSkipped, c.BytesUploaded, c.Uploads, c.Resumes,
		} {
			if err := reg.Register(collector); err != nil {
				return nil, err
			}
		}
	}

	return c, nil
}

// PartUploaded ...
func (c *Collector) PartUploaded(size int64) {
	if c == nil {
		return
	}
	c.PartsUploaded.Inc()
	c.BytesUploaded.Add(float64(size))
}

// PartFailed ...
func (c *Collector) PartFailed() {
	if c == nil {
		return
	}
	c.PartsFailed.Inc()
}

// PartSkipped ...
func (c *Collector) PartSkipped() {
	if c == nil {
		return
	}
	c.PartsSkipped.Inc()
}

// UploadResumed ...
func (c *Collector) UploadResumed() {
	if c == nil {
		return
	}
	c.Resumes.Inc()
}

// UploadFinished records the outcome of an upload attempt.
func (c *Collector) UploadFinished(err error) {
	if c == nil {
		return
	}
	outcome := OutcomeSucceeded
	if err != nil {
		outcome = OutcomeFailed
	}
	c.Uploads.WithLabelValues(outcome).Inc()
}
