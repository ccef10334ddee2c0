package ensemble

import (
	"context"
	"sync"
	"time"

	"github.com/okian/agropredict/internal/domain/model"
	"github.com/okian/agropredict/pkg/logger"
	"github.com/okian/agropredict/pkg/metrics"
)

// subscriber receives round snapshots in order.
type subscriber func(model.Snapshot)

// Round is one ensemble execution. Slots are written at most once and only
// while the round is running.
type Round struct {
	id        uint64
	domain    model.Domain
	requested []model.ModelID
	wanted    map[model.ModelID]struct{}
	started   time.Time
	logger    logger.Logger

	ctx    context.Context //nolint:containedctx // cancels in-flight invocations
	cancel context.CancelFunc

	// notifyMu orders record and notify so subscribers see snapshots in
	// arrival order. It is always taken before mu.
	notifyMu sync.Mutex

	mu       sync.Mutex
	state    model.RoundState
	results  []model.ModelResult
	recorded map[model.ModelID]struct{}
	subs     []subscriber
	done     chan struct{}
}

func newRound(ctx context.Context, id uint64, domain model.Domain, ids []model.ModelID, l logger.Logger) *Round {
	rctx, cancel := context.WithCancel(ctx)
	wanted := make(map[model.ModelID]struct{}, len(ids))
	for _, m := range ids {
		wanted[m] = struct{}{}
	}
	return &Round{
		id:        id,
		domain:    domain,
		requested: ids,
		wanted:    wanted,
		started:   time.Now(),
		logger:    l,
		ctx:       rctx,
		cancel:    cancel,
		state:     model.RoundRunning,
		results:   make([]model.ModelResult, 0, len(ids)),
		recorded:  make(map[model.ModelID]struct{}, len(ids)),
		done:      make(chan struct{}),
	}
}

// ID returns the round id.
func (r *Round) ID() uint64 { return r.id }

// Domain returns the round's domain.
func (r *Round) Domain() model.Domain { return r.domain }

// Done is closed once the round is complete or cancelled.
func (r *Round) Done() <-chan struct{} { return r.done }

// State returns the current lifecycle state.
func (r *Round) State() model.RoundState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns a consistent copy of the round.
func (r *Round) Snapshot() model.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Round) snapshotLocked() model.Snapshot {
	return model.Snapshot{
		RoundID:   r.id,
		Domain:    r.domain,
		State:     r.state,
		Requested: append([]model.ModelID(nil), r.requested...),
		Results:   append([]model.ModelResult(nil), r.results...),
	}
}

// Subscribe registers fn for every future snapshot and immediately calls it
// with the current one. fn runs on the goroutine that changed the round and
// must not call back into the round.
func (r *Round) Subscribe(fn func(model.Snapshot)) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	r.subs = append(r.subs, fn)
	snap := r.snapshotLocked()
	r.mu.Unlock()

	fn(snap)
}

// Record stores res in its slot. It reports false and changes nothing when
// the round is no longer running, the model was not requested, or the slot
// already holds a result.
func (r *Round) Record(res model.ModelResult) bool {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if r.state != model.RoundRunning {
		r.mu.Unlock()
		return false
	}
	if _, ok := r.wanted[res.ModelID]; !ok {
		r.mu.Unlock()
		return false
	}
	if _, dup := r.recorded[res.ModelID]; dup {
		r.mu.Unlock()
		return false
	}

	res.Arrival = len(r.results) + 1
	r.results = append(r.results, res)
	r.recorded[res.ModelID] = struct{}{}
	if len(r.results) == len(r.requested) {
		r.state = model.RoundComplete
	}
	snap := r.snapshotLocked()
	subs := append([]subscriber(nil), r.subs...)
	r.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
	if snap.State == model.RoundComplete {
		r.finish(snap)
	}
	return true
}

// Cancel stops the round. In-flight invocations see their context
// cancelled and anything they deliver afterwards is ignored. Cancel reports
// false if the round had already finished.
func (r *Round) Cancel() bool {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return false
	}
	r.state = model.RoundCancelled
	snap := r.snapshotLocked()
	subs := append([]subscriber(nil), r.subs...)
	r.mu.Unlock()

	r.cancel()
	for _, fn := range subs {
		fn(snap)
	}
	r.finish(snap)
	return true
}

func (r *Round) completeEmpty() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	r.state = model.RoundComplete
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.finish(snap)
}

// finish runs once per round with notifyMu held.
func (r *Round) finish(snap model.Snapshot) {
	r.cancel()
	close(r.done)

	elapsed := time.Since(r.started)
	if snap.State == model.RoundCancelled {
		metrics.RecordRoundCancelled(string(r.domain))
		r.logger.Debug(r.ctx, "round cancelled",
			logger.Uint64("round", r.id),
			logger.Int("responded", len(snap.Results)),
			logger.Int("requested", len(snap.Requested)),
		)
		return
	}

	outcome := outcomeOf(snap)
	metrics.RecordRoundCompleted(string(r.domain), outcome, elapsed.Seconds())
	r.logger.Debug(r.ctx, "round complete",
		logger.Uint64("round", r.id),
		logger.String("outcome", outcome),
		logger.Duration("elapsed", elapsed),
	)
}

func outcomeOf(snap model.Snapshot) string {
	if len(snap.Requested) == 0 {
		return string(model.StatusEmpty)
	}
	for _, res := range snap.Results {
		if res.OK() {
			return string(model.StatusAvailable)
		}
	}
	return string(model.StatusAllFailed)
}
