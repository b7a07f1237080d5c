package export

import (
	"context"
	"time"

	"keyframes-backend/internal/apperr"
)

// Transport is the boundary to the external renderer.
type Transport interface {
	Submit(ctx context.Context, d *Descriptor) (jobID string, err error)
	Poll(ctx context.Context, jobID string) (JobStatus, error)
}

// Poller watches one job until it reaches a terminal state.
type Poller struct {
	Transport  Transport
	Interval   time.Duration
	MaxRetries int
	Backoff    time.Duration
	// After replaces time.After so tests can drive the schedule.
	After func(time.Duration) <-chan time.Time
	// OnUpdate is called after every observation that changed the status.
	OnUpdate func(JobStatus)
	// OnSubmit is called once the transport has accepted the job.
	OnSubmit func(jobID string)
}

func NewPoller(t Transport, interval time.Duration, maxRetries int) *Poller {
	return &Poller{
		Transport:  t,
		Interval:   interval,
		MaxRetries: maxRetries,
		Backoff:    time.Second,
		After:      time.After,
	}
}

// Wait polls jobID until it completes or fails and returns the terminal
// status. A poll that keeps failing after MaxRetries retries surfaces as an
// ExternalServiceError; tracked state is left untouched by failed polls.
func (p *Poller) Wait(ctx context.Context, jobID string, tracker *Tracker) (JobStatus, error) {
	if tracker == nil {
		tracker = NewTracker()
	}
	after := p.After
	if after == nil {
		after = time.After
	}

	for {
		var observed JobStatus
		err := RetryWithBackoff(ctx, after, p.Backoff, p.MaxRetries, func() error {
			var err error
			observed, err = p.Transport.Poll(ctx, jobID)
			return err
		})
		if err != nil {
			if ctx.Err() != nil {
				return tracker.Status(), ctx.Err()
			}
			return tracker.Status(), apperr.External("export poll", err)
		}

		status, changed, err := tracker.Apply(observed)
		if err != nil {
			return status, apperr.External("export poll", err)
		}
		if changed && p.OnUpdate != nil {
			p.OnUpdate(status)
		}
		if status.State.Terminal() {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return tracker.Status(), ctx.Err()
		case <-after(p.Interval):
		}
	}
}

// Run submits the descriptor and waits for the job to finish.
func (p *Poller) Run(ctx context.Context, d *Descriptor, tracker *Tracker) (string, JobStatus, error) {
	var jobID string
	after := p.After
	if after == nil {
		after = time.After
	}
	err := RetryWithBackoff(ctx, after, p.Backoff, p.MaxRetries, func() error {
		var err error
		jobID, err = p.Transport.Submit(ctx, d)
		return err
	})
	if err != nil {
		if tracker == nil {
			tracker = NewTracker()
		}
		return "", tracker.Status(), apperr.External("export submit", err)
	}
	if p.OnSubmit != nil {
		p.OnSubmit(jobID)
	}
	status, err := p.Wait(ctx, jobID, tracker)
	return jobID, status, err
}
