// Package ensemble fans one prediction out to a set of models and tracks the
// round until every model has answered or the round is cancelled.
package ensemble

import (
	"context"
	"sync"

	"github.com/okian/agropredict/internal/domain/model"
	"github.com/okian/agropredict/internal/domain/request"
	"github.com/okian/agropredict/pkg/logger"
	"github.com/okian/agropredict/pkg/metrics"
)

const msgRejected = "invocation rejected by dispatcher"

// Invoker performs one model call. ok is false when ctx was cancelled before
// a response arrived; nothing is recorded in that case.
type Invoker interface {
	Invoke(ctx context.Context, req model.Request) (model.ModelResult, bool)
}

// RequestBuilder validates input and produces per-model requests.
type RequestBuilder interface {
	Build(domain model.Domain, input model.InputRecord, modelID model.ModelID) (model.Request, error)
}

// Dispatcher executes invocations asynchronously. Dispatch returns false
// when the invocation could not be accepted.
type Dispatcher interface {
	Dispatch(inv model.Invocation) bool
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(inv model.Invocation) bool

// Dispatch calls f(inv).
func (f DispatcherFunc) Dispatch(inv model.Invocation) bool { return f(inv) }

// GoDispatcher runs every invocation on its own goroutine.
func GoDispatcher(invoker Invoker) Dispatcher {
	return DispatcherFunc(func(inv model.Invocation) bool {
		go func() {
			if res, ok := invoker.Invoke(inv.Ctx, inv.Request); ok {
				inv.Deliver(res)
			}
		}()
		return true
	})
}

// Coordinator starts ensemble rounds. Round ids start at 1 and increase
// separately for each domain, so a domain's session sees only its own ids.
type Coordinator struct {
	builder    RequestBuilder
	dispatcher Dispatcher
	logger     logger.Logger

	idMu   sync.Mutex
	lastID map[model.Domain]uint64
}

// NewCoordinator creates a coordinator that calls invoker for each model.
func NewCoordinator(invoker Invoker, opts ...Option) *Coordinator {
	c := &Coordinator{
		builder: request.NewBuilder(),
		lastID:  make(map[model.Domain]uint64),
	}
	if invoker != nil {
		c.dispatcher = GoDispatcher(invoker)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("ensemble")
	}
	return c
}

// Start creates a round for modelIDs and dispatches one invocation per
// distinct id. The round context derives from ctx; cancelling either the
// round or ctx aborts every in-flight invocation. An empty id list yields a
// round that is already complete.
func (c *Coordinator) Start(ctx context.Context, domain model.Domain, input model.InputRecord, modelIDs []model.ModelID) *Round {
	ids := distinct(modelIDs)
	r := newRound(ctx, c.allocate(domain), domain, ids, c.logger)
	metrics.RecordRoundStarted(string(domain))
	c.logger.Debug(ctx, "round started",
		logger.Uint64("round", r.id),
		logger.String("domain", string(domain)),
		logger.Int("models", len(ids)),
	)

	if len(ids) == 0 {
		r.completeEmpty()
		return r
	}

	input = input.Clone()
	for _, id := range ids {
		req, err := c.builder.Build(domain, input, id)
		if err != nil {
			r.Record(model.Failure(id, model.KindValidation, err.Error(), 0))
			continue
		}

		slot := id
		inv := model.Invocation{
			RoundID: r.id,
			Request: req,
			Ctx:     r.ctx,
			Deliver: func(res model.ModelResult) {
				res.ModelID = slot
				r.Record(res)
			},
		}
		if c.dispatcher == nil || !c.dispatcher.Dispatch(inv) {
			r.Record(model.Failure(id, model.KindRejected, msgRejected, 0))
		}
	}
	return r
}

func (c *Coordinator) allocate(domain model.Domain) uint64 {
	c.idMu.Lock()
	defer c.idMu.Unlock()
	c.lastID[domain]++
	return c.lastID[domain]
}

func distinct(ids []model.ModelID) []model.ModelID {
	seen := make(map[model.ModelID]struct{}, len(ids))
	out := make([]model.ModelID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
