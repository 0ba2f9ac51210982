package coordinator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/riemann/internal/domain"
	"github.com/tutu-network/riemann/internal/infra/metrics"
	"github.com/tutu-network/riemann/internal/infra/network"
	"github.com/tutu-network/riemann/internal/infra/registry"
)

// Summary describes a finished distribution.
type Summary struct {
	Total       float64 `json:"total"`
	Tasks       int     `json:"tasks"`
	Dispatched  int     `json:"dispatched"`
	Failed      int     `json:"failed"`
	Rounds      int     `json:"rounds"`
	Discoveries int     `json:"discoveries"`
}

// DispatcherConfig tunes the round loop.
type DispatcherConfig struct {
	// RunID tags outcomes handed to the recorder.
	RunID string
	// MaxDiscoveryAttempts bounds consecutive discoveries that find nobody.
	// Zero retries forever.
	MaxDiscoveryAttempts int
}

// Dispatcher assigns tasks to known peers in rounds. Within a round every
// peer in the snapshot gets at most one task and all exchanges run
// concurrently; the round ends when the last exchange returns. Failed tasks
// contribute zero and are not redispatched; their peers are removed from the
// registry after the round.
type Dispatcher struct {
	config     DispatcherConfig
	registry   *registry.Registry
	discoverer domain.Discoverer
	exchanger  domain.Exchanger
	recorder   domain.RunRecorder
	log        *zap.Logger
}

// NewDispatcher wires a dispatcher. recorder may be nil.
func NewDispatcher(cfg DispatcherConfig, reg *registry.Registry, disc domain.Discoverer, ex domain.Exchanger, recorder domain.RunRecorder, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		config:     cfg,
		registry:   reg,
		discoverer: disc,
		exchanger:  ex,
		recorder:   recorder,
		log:        log.Named("dispatch"),
	}
}

// Distribute runs rounds until every task has been assigned once and returns
// the sum of the successful results. Discovery errors and cancellation end
// the loop with an error; exchange failures never do.
func (d *Dispatcher) Distribute(ctx context.Context, tasks []domain.Task) (Summary, error) {
	summary := Summary{Tasks: len(tasks)}
	next := 0
	emptyDiscoveries := 0

	for next < len(tasks) {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if d.registry.IsEmpty() {
			if limit := d.config.MaxDiscoveryAttempts; limit > 0 && emptyDiscoveries >= limit {
				return summary, fmt.Errorf("%w after %d attempts", domain.ErrNoPeers, emptyDiscoveries)
			}
			summary.Discoveries++
			if _, err := d.discoverer.Discover(ctx); err != nil {
				return summary, fmt.Errorf("discover workers: %w", err)
			}
			if d.registry.IsEmpty() {
				emptyDiscoveries++
			} else {
				emptyDiscoveries = 0
			}
			d.log.Info("found workers for execution", zap.Int("workers", d.registry.Len()))
			continue
		}

		summary.Rounds++
		outcomes, failed := d.round(ctx, summary.Rounds, next, d.registry.Snapshot(), tasks[next:])
		next += len(outcomes)

		for _, o := range outcomes {
			summary.Dispatched++
			if o.Failed() {
				summary.Failed++
				continue
			}
			summary.Total += o.Result
		}

		if pruned := d.registry.RemoveAll(failed); pruned > 0 {
			metrics.PeersPruned.Add(float64(pruned))
			d.log.Info("pruned failed workers", zap.Int("pruned", pruned), zap.Int("remaining", d.registry.Len()))
		}
		metrics.Rounds.Inc()

		if d.recorder != nil {
			if err := d.recorder.RecordOutcomes(d.config.RunID, outcomes); err != nil {
				d.log.Warn("record outcomes", zap.Error(err))
			}
		}
	}

	return summary, nil
}

// round zips peers with the pending tasks, runs every exchange concurrently
// and waits for all of them. It returns one outcome per assignment, in task
// order, and the peers whose exchange failed. The registry is not touched.
func (d *Dispatcher) round(ctx context.Context, round, seq int, peers []domain.Peer, pending []domain.Task) ([]domain.TaskOutcome, []domain.Peer) {
	n := min(len(peers), len(pending))
	outcomes := make([]domain.TaskOutcome, n)

	var (
		mu     sync.Mutex
		failed []domain.Peer
		g      errgroup.Group
	)
	for i := 0; i < n; i++ {
		i := i
		peer, task := peers[i], pending[i]
		outcomes[i] = domain.TaskOutcome{Seq: seq + i, Round: round, Peer: peer.String(), Task: task}
		metrics.TasksDispatched.Inc()

		g.Go(func() error {
			result, err := d.exchanger.Exchange(ctx, peer, task)
			if err != nil {
				metrics.TasksFailed.WithLabelValues(network.FailureReason(err)).Inc()
				d.log.Warn("task failed", zap.Stringer("peer", peer), zap.Stringer("task", task), zap.Error(err))
				outcomes[i].Error = err.Error()

				mu.Lock()
				failed = append(failed, peer)
				mu.Unlock()
				return nil
			}
			outcomes[i].Result = result
			return nil
		})
	}
	_ = g.Wait()

	d.log.Debug("round complete", zap.Int("round", round), zap.Int("dispatched", n), zap.Int("failed", len(failed)))
	return outcomes, failed
}
