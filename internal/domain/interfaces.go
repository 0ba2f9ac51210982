package domain

import (
	"context"
	"time"
)

// ─── Service Interfaces ─────────────────────────────────────────────────────
// Infrastructure implements them; the coordinator depends on them.

// Discoverer fills the peer registry it was built with.
type Discoverer interface {
	// Discover probes the network once and returns the number of responses.
	Discover(ctx context.Context) (int, error)
}

// Exchanger performs one task round trip with one peer.
type Exchanger interface {
	Exchange(ctx context.Context, peer Peer, task Task) (float64, error)
}

// RunStatus tracks a coordinator run's lifecycle.
type RunStatus string

const (
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
)

// Run is one `run` invocation of the coordinator as recorded in history.
type Run struct {
	ID          string    `json:"id"`
	Start       float64   `json:"start"`
	End         float64   `json:"end"`
	Step        float64   `json:"step"`
	Status      RunStatus `json:"status"`
	Total       float64   `json:"total"`
	Tasks       int       `json:"tasks"`
	Dispatched  int       `json:"dispatched"`
	Failed      int       `json:"failed"`
	Rounds      int       `json:"rounds"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// TaskOutcome is the result of one dispatched task.
type TaskOutcome struct {
	Seq    int     `json:"seq"`
	Round  int     `json:"round"`
	Peer   string  `json:"peer"`
	Task   Task    `json:"task"`
	Result float64 `json:"result"`
	Error  string  `json:"error,omitempty"`
}

// Failed reports whether the exchange for this outcome failed.
func (o TaskOutcome) Failed() bool {
	return o.Error != ""
}

// RunRecorder persists run history. Implemented by infra/sqlite.DB.
type RunRecorder interface {
	BeginRun(run Run) error
	RecordOutcomes(runID string, outcomes []TaskOutcome) error
	FinishRun(run Run) error
}
