package stub

import "time"

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLatencyRange sets the simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *Service) {
		if minLatency >= 0 && maxLatency >= minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithModel adds or replaces a growth model and its confidence.
func WithModel(name string, confidence float64) Option {
	return func(s *Service) {
		if name == "" {
			return
		}
		if _, ok := s.confidence[name]; !ok {
			s.models = append(s.models, name)
		}
		s.confidence[name] = confidence
	}
}

// WithModels replaces the growth catalog. The first entry becomes the default.
func WithModels(confidence map[string]float64, order ...string) Option {
	return func(s *Service) {
		s.models = nil
		s.confidence = make(map[string]float64, len(confidence))
		for _, name := range order {
			if c, ok := confidence[name]; ok {
				s.models = append(s.models, name)
				s.confidence[name] = c
			}
		}
		if len(s.models) > 0 {
			s.defaultModel = s.models[0]
		}
	}
}

// WithFailure makes every call for model fail in the given way.
func WithFailure(name string, f Failure) Option {
	return func(s *Service) {
		if name != "" {
			s.failures[name] = f
		}
	}
}

// WithClimateConfidence sets the confidence the climate model reports.
func WithClimateConfidence(confidence float64) Option {
	return func(s *Service) {
		s.climateConfidence = confidence
	}
}

// WithSeed makes latency sampling reproducible.
func WithSeed(seed int64) Option {
	return func(s *Service) {
		s.seed = seed
	}
}
