package export

import (
	"fmt"
	"sync"
	"time"

	"keyframes-backend/internal/apperr"
)

type State string

const (
	StatePending    State = "pending"
	StateProcessing State = "processing"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

func (s State) Valid() bool {
	return s.rank() >= 0
}

func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

func (s State) rank() int {
	switch s {
	case StatePending:
		return 0
	case StateProcessing:
		return 1
	case StateCompleted, StateFailed:
		return 2
	}
	return -1
}

// JobStatus is one observation of a render job.
type JobStatus struct {
	State     State     `json:"status"`
	Progress  int       `json:"progress"`
	ResultURL string    `json:"result_url,omitempty"`
	FileSize  int64     `json:"file_size,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Tracker folds job observations into a status that only moves forward:
// pending, then processing, then completed or failed, with progress never
// decreasing.
type Tracker struct {
	mu     sync.Mutex
	status JobStatus
}

func NewTracker() *Tracker {
	return &Tracker{status: JobStatus{State: StatePending}}
}

func (t *Tracker) Status() JobStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Apply merges an observation and reports whether the tracked status changed.
// Observations that would move the job backwards, such as a stale poll
// response, are ignored.
func (t *Tracker) Apply(next JobStatus) (JobStatus, bool, error) {
	if !next.State.Valid() {
		return t.Status(), false, apperr.Validation("status", fmt.Sprintf("unknown job state %q", next.State))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.status
	if cur.State.Terminal() || next.State.rank() < cur.State.rank() {
		return cur, false, nil
	}

	merged := cur
	merged.State = next.State
	merged.Progress = clampProgress(next.Progress)
	if merged.Progress < cur.Progress {
		merged.Progress = cur.Progress
	}
	switch next.State {
	case StateCompleted:
		merged.Progress = 100
		merged.ResultURL = next.ResultURL
		merged.FileSize = next.FileSize
	case StateFailed:
		merged.Error = next.Error
		if merged.Error == "" {
			merged.Error = "export failed"
		}
	}
	if !next.UpdatedAt.IsZero() {
		merged.UpdatedAt = next.UpdatedAt
	}

	changed := merged.State != cur.State || merged.Progress != cur.Progress ||
		merged.ResultURL != cur.ResultURL || merged.Error != cur.Error
	t.status = merged
	return merged, changed, nil
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
