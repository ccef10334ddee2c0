package service_test

import (
	"context"
	"sync"
	"time"

	"github.com/okian/agropredict/internal/domain/model"
	"github.com/okian/agropredict/internal/domain/types"
	"github.com/okian/agropredict/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

// fakePredictor answers from a table. Models with a gate block until the
// gate closes or the call is cancelled.
type fakePredictor struct {
	mu        sync.Mutex
	results   map[model.ModelID]model.ModelResult
	gates     map[model.ModelID]chan struct{}
	calls     []model.Request
	cancelled []model.ModelID
	catalog   types.Catalog

	// stubborn models ignore cancellation and answer once their gate opens.
	stubborn map[model.ModelID]bool
}

func newFakePredictor() *fakePredictor {
	return &fakePredictor{
		results:  make(map[model.ModelID]model.ModelResult),
		gates:    make(map[model.ModelID]chan struct{}),
		stubborn: make(map[model.ModelID]bool),
		catalog:  types.Catalog{Models: []string{"XGBoost", "KNN"}, Default: "XGBoost"},
	}
}

func (f *fakePredictor) answer(id model.ModelID, confidence float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = model.Success(id, []byte(`{"value":1}`), confidence, time.Millisecond)
}

func (f *fakePredictor) fail(id model.ModelID, kind model.ErrorKind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[id] = model.Failure(id, kind, string(kind), time.Millisecond)
}

func (f *fakePredictor) gate(id model.ModelID) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[id] = ch
	return ch
}

func (f *fakePredictor) Invoke(ctx context.Context, req model.Request) (model.ModelResult, bool) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	gate := f.gates[req.ModelID]
	res, ok := f.results[req.ModelID]
	stubborn := f.stubborn[req.ModelID]
	f.mu.Unlock()

	if !ok {
		res = model.Failure(req.ModelID, model.KindServiceError, "unknown model", 0)
	}
	if gate != nil && stubborn {
		<-gate
		return res, true
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			f.mu.Lock()
			f.cancelled = append(f.cancelled, req.ModelID)
			f.mu.Unlock()
			return model.ModelResult{}, false
		}
	}
	return res, true
}

func (f *fakePredictor) Models(_ context.Context) (types.Catalog, error) {
	return f.catalog, nil
}

func (f *fakePredictor) ModelMetrics(_ context.Context) ([]types.ModelMetric, error) {
	return []types.ModelMetric{{Model: "XGBoost", TestR2Mean: 0.8}}, nil
}

func (f *fakePredictor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakePredictor) requested() []model.ModelID {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ModelID, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.ModelID
	}
	return out
}

func (f *fakePredictor) cancelledModels() []model.ModelID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.ModelID(nil), f.cancelled...)
}

func growthInput() model.InputRecord {
	return model.InputRecord{"root_length": 30.5, "yield": 420, "c7g_content": 0.031}
}

func climateInput() model.InputRecord {
	return model.InputRecord{"bio1": 8.2, "bio2": 11.4, "bio3": 30, "bio4": 900, "bio5": 27.3}
}

// eventually polls cond until it holds or the deadline passes.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

// within runs fn and reports whether it returned before d elapsed.
func within(d time.Duration, fn func()) bool {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
