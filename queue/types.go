package queue

import (
	"fmt"
	"time"
)

// ScanJob is a single discovery request submitted to the scan queue. A
// worker popping the job runs the full pipeline for one root domain:
// subdomain enumeration, HTTP probing, risk scoring, and graph upserts.
type ScanJob struct {
	// JobID is a UUID assigned when the job is enqueued. Results carry the
	// same ID so callers can correlate them.
	JobID string `json:"job_id"`

	// Domain is the root domain to scan, e.g. "example.com". It must be on
	// the authorized targets list; workers re-check before running anything.
	Domain string `json:"domain"`

	// RequestedBy identifies who or what enqueued the job, e.g. "cli" or a
	// gateway instance ID. Informational only.
	RequestedBy string `json:"requested_by,omitempty"`

	// SubmittedAt is the Unix timestamp in milliseconds when the job was
	// enqueued.
	SubmittedAt int64 `json:"submitted_at"`
}

// ScanResult is the outcome of one ScanJob, published on the job's result
// channel when the worker finishes.
type ScanResult struct {
	// JobID correlates this result with the original job.
	JobID string `json:"job_id"`

	// Domain is the root domain that was scanned.
	Domain string `json:"domain"`

	// Subdomains is the number of subdomains discovered.
	Subdomains int `json:"subdomains"`

	// LiveServices is the number of responsive web services found.
	LiveServices int `json:"live_services"`

	// Scored is the number of services that received a risk score.
	Scored int `json:"scored"`

	// Error is the failure message if the scan did not complete.
	// Empty on success.
	Error string `json:"error,omitempty"`

	// WorkerID identifies the worker that processed the job.
	WorkerID string `json:"worker_id"`

	// StartedAt is the Unix timestamp in milliseconds when the scan started.
	StartedAt int64 `json:"started_at"`

	// CompletedAt is the Unix timestamp in milliseconds when the scan
	// finished.
	CompletedAt int64 `json:"completed_at"`
}

// IsValid reports whether the job has all required fields populated.
func (j *ScanJob) IsValid() error {
	if j.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if j.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	if j.SubmittedAt <= 0 {
		return fmt.Errorf("submitted_at must be positive, got %d", j.SubmittedAt)
	}
	return nil
}

// Age returns the duration since the job was enqueued. Useful for spotting
// jobs that sat in the queue too long.
func (j *ScanJob) Age() time.Duration {
	if j.SubmittedAt <= 0 {
		return 0
	}
	now := time.Now().UnixMilli()
	return time.Duration(now-j.SubmittedAt) * time.Millisecond
}

// HasError returns true if the scan failed.
func (r *ScanResult) HasError() bool {
	return r.Error != ""
}

// Duration returns the wall-clock time the worker spent on the scan.
func (r *ScanResult) Duration() time.Duration {
	if r.StartedAt <= 0 || r.CompletedAt <= 0 {
		return 0
	}
	return time.Duration(r.CompletedAt-r.StartedAt) * time.Millisecond
}

// IsValid reports whether the result has all required fields populated.
func (r *ScanResult) IsValid() error {
	if r.JobID == "" {
		return fmt.Errorf("job_id is required")
	}
	if r.Domain == "" {
		return fmt.Errorf("domain is required")
	}
	if r.WorkerID == "" {
		return fmt.Errorf("worker_id is required")
	}
	if r.StartedAt <= 0 {
		return fmt.Errorf("started_at must be positive, got %d", r.StartedAt)
	}
	if r.CompletedAt <= 0 {
		return fmt.Errorf("completed_at must be positive, got %d", r.CompletedAt)
	}
	if r.CompletedAt < r.StartedAt {
		return fmt.Errorf("completed_at (%d) cannot be before started_at (%d)", r.CompletedAt, r.StartedAt)
	}
	return nil
}
