// Package stub simulates the prediction service for local runs and tests.
package stub

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/agropredict/internal/domain/request"
	"github.com/okian/agropredict/internal/domain/types"
)

const (
	defaultMinLatency = 80 * time.Millisecond
	defaultMaxLatency = 150 * time.Millisecond
	defaultRandomSeed = 42
	climateSeedCount  = 20
)

// Failure selects how a model misbehaves.
type Failure string

// Failure modes.
const (
	FailStatus       Failure = "status"      // HTTP 500
	FailErrorField   Failure = "error_field" // HTTP 200 with {"error": ...}
	FailBadJSON      Failure = "bad_json"    // HTTP 200 with a non-JSON body
	FailNoConfidence Failure = "no_confidence"
	FailHang         Failure = "hang" // never answers until the client gives up
)

// Service serves the four collaborator endpoints.
type Service struct {
	models            []string
	defaultModel      string
	confidence        map[string]float64
	climateConfidence float64
	keyFactors        []string
	failures          map[string]Failure
	metrics           []types.ModelMetric

	minLatency time.Duration
	maxLatency time.Duration
	seed       int64

	rngMu sync.Mutex
	rng   *rand.Rand

	calls atomic.Int64
	mux   *http.ServeMux
}

// New creates a stub with XGBoost, RandomForest, KNN and ANN.
func New(opts ...Option) *Service {
	s := &Service{
		models:       []string{"XGBoost", "RandomForest", "KNN", "ANN"},
		defaultModel: "XGBoost",
		confidence: map[string]float64{
			"XGBoost":      0.86,
			"RandomForest": 0.81,
			"KNN":          0.64,
			"ANN":          0.72,
		},
		climateConfidence: 0.77,
		keyFactors:        request.NewBuilder().ClimateFields(),
		failures:          make(map[string]Failure),
		minLatency:        defaultMinLatency,
		maxLatency:        defaultMaxLatency,
		seed:              defaultRandomSeed,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.rng = rand.New(rand.NewSource(s.seed)) //nolint:gosec // simulated latency only
	s.metrics = s.buildMetrics()

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("POST "+request.GrowthPredictPath, s.handleGrowth)
	s.mux.HandleFunc("POST "+request.ClimatePredictPath, s.handleClimate)
	s.mux.HandleFunc("GET /api/astragalus/models", s.handleModels)
	s.mux.HandleFunc("GET /api/astragalus/model-metrics", s.handleMetrics)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Calls returns how many predict requests were received.
func (s *Service) Calls() int64 { return s.calls.Load() }

func (s *Service) buildMetrics() []types.ModelMetric {
	out := make([]types.ModelMetric, 0, len(s.models))
	for _, name := range s.models {
		c := s.confidence[name]
		out = append(out, types.ModelMetric{
			Model:         name,
			TrainR2Mean:   round3(c + (1-c)/2),
			TestR2Mean:    round3(c),
			TrainRMSEMean: round3((1 - c) * 40),
			TestRMSEMean:  round3((1 - c) * 55),
		})
	}
	return out
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}

// wait sleeps for a sampled latency. It reports false if the client went away.
func (s *Service) wait(r *http.Request, hang bool) bool {
	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		s.rngMu.Lock()
		latency += time.Duration(s.rng.Int63n(int64(span)))
		s.rngMu.Unlock()
	}
	var after <-chan time.Time
	if !hang {
		after = time.After(latency)
	}
	select {
	case <-r.Context().Done():
		return false
	case <-after:
		return true
	}
}

func (s *Service) handleGrowth(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	body, ok := decode(w, r)
	if !ok {
		return
	}
	for _, f := range request.GrowthFields {
		if _, present := body[f]; !present {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("missing field %s", f)})
			return
		}
	}

	name, _ := body["model_name"].(string)
	if name == "" {
		name = s.defaultModel
	}
	conf, known := s.confidence[name]
	if !known {
		writeJSON(w, http.StatusOK, map[string]string{"error": fmt.Sprintf("model %s is not available", name)})
		return
	}
	if !s.wait(r, s.failures[name] == FailHang) {
		return
	}
	if s.fail(w, name) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model_used": name,
		"source_id":  uuid.NewString(),
		"confidence": conf,
	})
}

func (s *Service) handleClimate(w http.ResponseWriter, r *http.Request) {
	s.calls.Add(1)
	if _, ok := decode(w, r); !ok {
		return
	}
	if !s.wait(r, s.failures["default"] == FailHang) {
		return
	}
	if s.fail(w, "default") {
		return
	}
	s.rngMu.Lock()
	seedID := s.rng.Intn(climateSeedCount) + 1
	s.rngMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"seed_id":     seedID,
		"confidence":  s.climateConfidence,
		"key_factors": s.keyFactors,
	})
}

func (s *Service) fail(w http.ResponseWriter, name string) bool {
	switch s.failures[name] {
	case FailStatus:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "model crashed"})
	case FailErrorField:
		writeJSON(w, http.StatusOK, map[string]string{"error": "prediction failed"})
	case FailBadJSON:
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("<html>oops</html>"))
	case FailNoConfidence:
		writeJSON(w, http.StatusOK, map[string]string{"model_used": name})
	default:
		return false
	}
	return true
}

func (s *Service) handleModels(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, types.Catalog{
		Models:  append([]string(nil), s.models...),
		Default: s.defaultModel,
	})
}

func (s *Service) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"metrics": s.metrics})
}

func decode(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
