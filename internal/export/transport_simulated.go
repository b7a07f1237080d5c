package export

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"keyframes-backend/internal/apperr"
)

// simulatedSteps is the progress sequence of the stub render function.
var simulatedSteps = []int{10, 25, 50, 75, 90}

// SimulatedTransport stands in for the render function in local development
// and tests. Each Poll advances the job by one step; the job completes with a
// placeholder URL in the exported-videos bucket.
type SimulatedTransport struct {
	baseURL string
	now     func() time.Time

	mu   sync.Mutex
	jobs map[string]*simulatedJob
}

type simulatedJob struct {
	step int
	desc *Descriptor
}

func NewSimulatedTransport(supabaseURL string) *SimulatedTransport {
	return &SimulatedTransport{
		baseURL: strings.TrimSuffix(supabaseURL, "/"),
		now:     time.Now,
		jobs:    make(map[string]*simulatedJob),
	}
}

func (t *SimulatedTransport) Submit(ctx context.Context, d *Descriptor) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	id := d.ID.String()
	t.mu.Lock()
	t.jobs[id] = &simulatedJob{desc: d}
	t.mu.Unlock()
	return id, nil
}

func (t *SimulatedTransport) Poll(ctx context.Context, jobID string) (JobStatus, error) {
	if err := ctx.Err(); err != nil {
		return JobStatus{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[jobID]
	if !ok {
		return JobStatus{}, apperr.NotFound("export job", jobID)
	}

	now := t.now().UTC()
	if job.step < len(simulatedSteps) {
		progress := simulatedSteps[job.step]
		job.step++
		return JobStatus{State: StateProcessing, Progress: progress, UpdatedAt: now}, nil
	}

	d := job.desc
	return JobStatus{
		State:     StateCompleted,
		Progress:  100,
		ResultURL: fmt.Sprintf("%s/storage/v1/object/public/exported-videos/export_%s.%s", t.baseURL, d.ID, d.Settings.Format),
		FileSize:  estimateSize(d.Settings),
		UpdatedAt: now,
	}, nil
}

// estimateSize guesses an output size from bitrate and duration.
func estimateSize(s Settings) int64 {
	kbps := map[Quality]int64{QualityLow: 1000, QualityMedium: 2500, QualityHigh: 6000, QualityUltra: 20000}[s.Quality]
	if kbps == 0 {
		kbps = 2500
	}
	return kbps * 1000 / 8 * s.Duration / 1000
}
