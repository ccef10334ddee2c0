// Package service wires the prediction pipeline together: the invocation
// queue and workers, the ensemble coordinator and one session per domain.
package service

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/agropredict/internal/adapters/mq/queue"
	"github.com/okian/agropredict/internal/adapters/mq/worker"
	"github.com/okian/agropredict/internal/adapters/predictor"
	"github.com/okian/agropredict/internal/domain/dedupe"
	"github.com/okian/agropredict/internal/domain/ensemble"
	"github.com/okian/agropredict/internal/domain/model"
	"github.com/okian/agropredict/internal/domain/request"
	"github.com/okian/agropredict/internal/domain/types"
	"github.com/okian/agropredict/pkg/logger"
	"github.com/okian/agropredict/pkg/metrics"
)

const (
	defaultBaseURL       = "http://localhost:5000"
	defaultInvokeTimeout = 15 * time.Second
	defaultQueueSize     = 1_024
	defaultDedupeSize    = 10_000
	defaultClimateModel  = "default"
	stopTimeout          = 30 * time.Second
)

// Predictor is the prediction service as seen by the pipeline.
type Predictor interface {
	ensemble.Invoker
	Models(ctx context.Context) (types.Catalog, error)
	ModelMetrics(ctx context.Context) ([]types.ModelMetric, error)
}

// Submission is one predict request. A nil Models slice selects the
// default models for the domain; a non-nil empty slice is an empty round.
type Submission struct {
	Input     model.InputRecord
	Models    []string
	RequestID string
}

// SubmitResult reports what a submission did.
type SubmitResult struct {
	RoundID   uint64             `json:"round_id,omitempty"`
	Duplicate bool               `json:"duplicate,omitempty"`
	State     model.SessionState `json:"state"`
}

// Service implements the API dependencies for the prediction gateway.
type Service struct {
	mu sync.RWMutex

	// Configuration
	baseURL       string
	invokeTimeout time.Duration
	workerCount   int
	queueSize     int
	dedupeSize    int
	growthModels  []string
	climateModel  string
	climateFields []string

	// Components, built by Start
	predictor Predictor
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	coord     *ensemble.Coordinator
	deduper   dedupe.Deduper
	sessions  map[model.Domain]*Session

	started bool
	cancel  context.CancelFunc

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		baseURL:       defaultBaseURL,
		invokeTimeout: defaultInvokeTimeout,
		workerCount:   runtime.NumCPU() * 4,
		queueSize:     defaultQueueSize,
		dedupeSize:    defaultDedupeSize,
		climateModel:  defaultClimateModel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the pipeline. The service keeps running after ctx ends;
// call Stop to shut it down.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}

	if s.predictor == nil {
		client, err := predictor.NewClient(s.baseURL,
			predictor.WithTimeout(s.invokeTimeout),
			predictor.WithLogger(s.logger.Named("predictor")),
		)
		if err != nil {
			return fmt.Errorf("start service: %w", err)
		}
		s.predictor = client
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.predictor)
	s.pool.Start(runCtx)

	s.coord = ensemble.NewCoordinator(s.predictor,
		ensemble.WithDispatcher(s.queue),
		ensemble.WithBuilder(request.NewBuilder(request.WithClimateFields(s.climateFields))),
		ensemble.WithLogger(s.logger.Named("ensemble")),
	)
	s.sessions = map[model.Domain]*Session{
		model.DomainGrowth:  NewSession(runCtx, model.DomainGrowth, s.coord, s.logger),
		model.DomainClimate: NewSession(runCtx, model.DomainClimate, s.coord, s.logger),
	}

	s.started = true
	s.logger.Info(ctx, "prediction service started",
		logger.String("base_url", s.baseURL),
		logger.Duration("invoke_timeout", s.invokeTimeout),
		logger.Int("workers", s.pool.Size()),
		logger.Int("queue_size", s.queueSize),
	)
	return nil
}

// Stop cancels live rounds and drains the worker pool. The service reports
// ErrNotStarted as soon as Stop begins; draining happens outside the lock.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	sessions := s.sessions
	pool := s.pool
	stopRun := s.cancel
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	for _, sess := range sessions {
		sess.Close()
	}
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
	}
	stopRun()

	s.logger.Info(ctx, "prediction service stopped")
}

func (s *Service) session(domain model.Domain) (*Session, error) {
	sess, _, err := s.components(domain)
	return sess, err
}

// components returns the session for domain and the shared collaborators
// as of the current Start.
func (s *Service) components(domain model.Domain) (*Session, runDeps, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return nil, runDeps{}, ErrNotStarted
	}
	sess, ok := s.sessions[domain]
	if !ok {
		return nil, runDeps{}, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	return sess, runDeps{predictor: s.predictor, deduper: s.deduper}, nil
}

type runDeps struct {
	predictor Predictor
	deduper   dedupe.Deduper
}

// Submit starts a round for sub in domain. A request id that was already
// used for this domain returns the current state without a new round.
func (s *Service) Submit(ctx context.Context, domain model.Domain, sub Submission) (SubmitResult, error) {
	sess, deps, err := s.components(domain)
	if err != nil {
		return SubmitResult{}, err
	}

	var key string
	if sub.RequestID != "" {
		key = dedupe.Key(string(domain), sub.RequestID)
		if deps.deduper.SeenAndRecord(ctx, key) {
			metrics.RecordDuplicateSubmission(string(domain))
			s.logger.Debug(ctx, "duplicate submission ignored",
				logger.String("domain", string(domain)),
				logger.String("request_id", sub.RequestID),
			)
			return SubmitResult{Duplicate: true, State: sess.State()}, nil
		}
	}

	ids := s.resolveModels(ctx, deps.predictor, domain, sub.Models)
	roundID, err := sess.Submit(ctx, sub.Input, ids)
	if err != nil {
		if key != "" {
			deps.deduper.Unrecord(ctx, key)
		}
		return SubmitResult{}, err
	}
	return SubmitResult{RoundID: roundID, State: sess.State()}, nil
}

// resolveModels picks the model ids for a submission. Growth falls back to
// the configured list, then to the service catalog, and finally to a single
// slot with no model name so the service default answers.
func (s *Service) resolveModels(ctx context.Context, p Predictor, domain model.Domain, requested []string) []model.ModelID {
	if requested != nil {
		return toIDs(requested)
	}
	if domain == model.DomainClimate {
		return []model.ModelID{model.ModelID(s.climateModel)}
	}
	if len(s.growthModels) > 0 {
		return toIDs(s.growthModels)
	}

	cat, err := p.Models(ctx)
	if err != nil || len(cat.Models) == 0 {
		s.logger.Warn(ctx, "model catalog unavailable; using the service default model", logger.Error(err))
		return []model.ModelID{""}
	}
	return toIDs(cat.Models)
}

func toIDs(names []string) []model.ModelID {
	out := make([]model.ModelID, len(names))
	for i, n := range names {
		out[i] = model.ModelID(n)
	}
	return out
}

// State returns the session state for domain.
func (s *Service) State(domain model.Domain) (model.SessionState, error) {
	sess, err := s.session(domain)
	if err != nil {
		return model.SessionState{}, err
	}
	return sess.State(), nil
}

// Await blocks until the current round of domain settles or ctx ends.
func (s *Service) Await(ctx context.Context, domain model.Domain) (model.SessionState, error) {
	sess, err := s.session(domain)
	if err != nil {
		return model.SessionState{}, err
	}
	st := sess.State()
	if st.Phase != model.PhasePending {
		return st, nil
	}
	return sess.Await(ctx, st.RoundID)
}

// AwaitRound blocks until roundID of domain settles.
func (s *Service) AwaitRound(ctx context.Context, domain model.Domain, roundID uint64) (model.SessionState, error) {
	sess, err := s.session(domain)
	if err != nil {
		return model.SessionState{}, err
	}
	return sess.Await(ctx, roundID)
}

// Subscribe registers fn for state changes of domain.
func (s *Service) Subscribe(domain model.Domain, fn func(model.SessionState)) (func(), error) {
	sess, err := s.session(domain)
	if err != nil {
		return nil, err
	}
	return sess.Subscribe(fn), nil
}

// Overview fetches the model catalog and the comparison metrics concurrently.
func (s *Service) Overview(ctx context.Context) (types.Overview, error) {
	s.mu.RLock()
	p := s.predictor
	started := s.started
	s.mu.RUnlock()
	if !started {
		return types.Overview{}, ErrNotStarted
	}

	var (
		cat  types.Catalog
		rows []types.ModelMetric
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cat, err = p.Models(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		rows, err = p.ModelMetrics(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.Overview{}, fmt.Errorf("model overview: %w", err)
	}
	return types.Overview{Catalog: cat, Metrics: rows}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if !s.started {
		return stats
	}

	ctx := context.Background()
	queueLen := s.queue.Len(ctx)
	stats["queueLength"] = queueLen
	stats["workersBusy"] = s.pool.Busy()
	stats["invocationsProcessed"] = s.pool.Processed()
	stats["submissionsRemembered"] = s.deduper.Size()

	sessions := make(map[string]interface{}, len(s.sessions))
	for d, sess := range s.sessions {
		st := sess.State()
		sessions[string(d)] = map[string]interface{}{
			"phase":   st.Phase,
			"roundId": st.RoundID,
		}
	}
	stats["sessions"] = sessions

	metrics.UpdateQueueSize(queueLen)
	return stats
}
