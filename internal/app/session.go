package service

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/agropredict/internal/domain/ensemble"
	"github.com/okian/agropredict/internal/domain/model"
	"github.com/okian/agropredict/internal/domain/selector"
	"github.com/okian/agropredict/pkg/logger"
	"github.com/okian/agropredict/pkg/metrics"
)

// RoundStarter starts ensemble rounds; *ensemble.Coordinator implements it.
type RoundStarter interface {
	Start(ctx context.Context, domain model.Domain, input model.InputRecord, modelIDs []model.ModelID) *ensemble.Round
}

// Session owns at most one live round for its domain. A new submission
// cancels the previous round; anything the old round reports afterwards is
// discarded.
//
// Listeners run one at a time on the session's delivery goroutine, in the
// order the states were produced, and hold no session lock. They may call
// Submit or Subscribe.
type Session struct {
	domain  model.Domain
	starter RoundStarter
	baseCtx context.Context //nolint:containedctx // rounds outlive the request that submitted them
	logger  logger.Logger

	mu           sync.Mutex
	current      *ensemble.Round
	state        model.SessionState
	applied      int
	closed       bool
	listeners    map[int]*listener
	nextListener int
	outbox       []delivery

	wake chan struct{}
}

type listener struct {
	fn      func(model.SessionState)
	removed atomic.Bool
}

// delivery is one state bound for the listeners registered when it was
// produced.
type delivery struct {
	state model.SessionState
	to    []*listener
}

// NewSession creates an idle session. Rounds derive their context from ctx.
func NewSession(ctx context.Context, domain model.Domain, starter RoundStarter, l logger.Logger) *Session {
	if l == nil {
		l = logger.Get()
	}
	s := &Session{
		domain:    domain,
		starter:   starter,
		baseCtx:   ctx,
		logger:    l.Named("session").Named(string(domain)),
		listeners: make(map[int]*listener),
		state:     model.SessionState{Domain: domain, Phase: model.PhaseIdle},
		wake:      make(chan struct{}, 1),
	}
	go s.deliver()
	return s
}

// Domain returns the session's domain.
func (s *Session) Domain() model.Domain { return s.domain }

// Submit starts a round for modelIDs and supersedes the current one.
func (s *Session) Submit(ctx context.Context, input model.InputRecord, modelIDs []model.ModelID) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	old := s.current
	r := s.starter.Start(s.baseCtx, s.domain, input, modelIDs)
	s.current = r
	s.applied = -1
	s.state = stateOf(s.domain, r.Snapshot())
	s.mu.Unlock()

	if old != nil && old.Cancel() {
		s.logger.Debug(ctx, "round superseded",
			logger.Uint64("round", old.ID()),
			logger.Uint64("by", r.ID()),
		)
	}
	metrics.RecordSubmission(string(s.domain))

	r.Subscribe(func(snap model.Snapshot) { s.apply(r, snap) })
	return r.ID(), nil
}

// apply folds a round snapshot into the session state. It runs under the
// round's notify lock, so snapshots of one round arrive in order.
func (s *Session) apply(r *ensemble.Round, snap model.Snapshot) {
	s.mu.Lock()
	if s.closed || s.current != r {
		s.mu.Unlock()
		if snap.State != model.RoundCancelled {
			metrics.RecordStaleResult(string(s.domain))
			s.logger.Debug(s.baseCtx, "stale snapshot discarded",
				logger.Uint64("round", snap.RoundID),
				logger.Int("results", len(snap.Results)),
			)
		}
		return
	}
	if len(snap.Results) < s.applied {
		s.mu.Unlock()
		return
	}
	s.applied = len(snap.Results)
	s.state = stateOf(s.domain, snap)
	st := s.state
	s.postLocked(st, s.listenersLocked())
	s.mu.Unlock()

	if st.Phase == model.PhaseSettled {
		s.logger.Debug(s.baseCtx, "round settled",
			logger.Uint64("round", st.RoundID),
			logger.String("status", string(st.Aggregate.Status)),
		)
	}
}

func (s *Session) listenersLocked() []*listener {
	out := make([]*listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		out = append(out, l)
	}
	return out
}

func (s *Session) postLocked(st model.SessionState, to []*listener) {
	if len(to) == 0 {
		return
	}
	s.outbox = append(s.outbox, delivery{state: st, to: to})
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// deliver drains the outbox until the session is closed and nothing is
// left to send.
func (s *Session) deliver() {
	for {
		s.mu.Lock()
		batch := s.outbox
		s.outbox = nil
		closed := s.closed
		s.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-s.wake
			continue
		}
		for _, d := range batch {
			for _, l := range d.to {
				if !l.removed.Load() {
					l.fn(d.state)
				}
			}
		}
	}
}

func stateOf(domain model.Domain, snap model.Snapshot) model.SessionState {
	agg := selector.Select(snap)
	phase := model.PhasePending
	if snap.State.Terminal() {
		phase = model.PhaseSettled
	}
	return model.SessionState{
		Domain:    domain,
		Phase:     phase,
		RoundID:   snap.RoundID,
		Aggregate: &agg,
	}
}

// State returns the current session state.
func (s *Session) State() model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for every state change. fn first receives the
// current state, then each later one. The returned function removes the
// listener.
func (s *Session) Subscribe(fn func(model.SessionState)) func() {
	l := &listener{fn: fn}

	s.mu.Lock()
	if s.closed {
		st := s.state
		s.mu.Unlock()
		fn(st)
		return func() {}
	}
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = l
	s.postLocked(s.state, []*listener{l})
	s.mu.Unlock()

	return func() {
		l.removed.Store(true)
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Await blocks until roundID settles and returns the settled state. It
// fails with ErrSuperseded if another submission replaces the round first,
// and with ErrUnknownRound for ids this session has not issued.
func (s *Session) Await(ctx context.Context, roundID uint64) (model.SessionState, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return model.SessionState{}, ErrClosed
	}
	r := s.current
	switch {
	case r == nil || roundID == 0 || roundID > r.ID():
		s.mu.Unlock()
		return model.SessionState{}, ErrUnknownRound
	case roundID < r.ID():
		s.mu.Unlock()
		return model.SessionState{}, ErrSuperseded
	}
	s.mu.Unlock()

	select {
	case <-r.Done():
	case <-ctx.Done():
		return s.State(), ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != r {
		return model.SessionState{}, ErrSuperseded
	}
	if s.closed {
		return s.state, ErrClosed
	}
	// The round may have finished before the session subscribed to it.
	if snap := r.Snapshot(); len(snap.Results) >= s.applied {
		s.applied = len(snap.Results)
		s.state = stateOf(s.domain, snap)
	}
	return s.state, nil
}

// Close cancels the live round, rejects further submissions and stops the
// delivery goroutine once queued states are sent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	r := s.current
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	if r != nil {
		r.Cancel()
	}
}
