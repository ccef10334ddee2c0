package service

import (
	"time"

	"github.com/okian/agropredict/internal/config"
	"github.com/okian/agropredict/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig applies every setting from cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		for _, opt := range []Option{
			WithBaseURL(cfg.BaseURL),
			WithInvokeTimeout(cfg.InvokeTimeout()),
			WithWorkerCount(cfg.WorkerCount),
			WithQueueSize(cfg.QueueSize),
			WithDedupeSize(cfg.DedupeSize),
			WithGrowthModels(cfg.GrowthModels),
			WithClimateModel(cfg.ClimateModel),
			WithClimateFields(cfg.ClimateFields),
		} {
			opt(s)
		}
	}
}

// WithBaseURL sets the prediction service base URL.
func WithBaseURL(url string) Option {
	return func(s *Service) {
		if url != "" {
			s.baseURL = url
		}
	}
}

// WithInvokeTimeout bounds each model call.
func WithInvokeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.invokeTimeout = d
		}
	}
}

// WithPredictor replaces the HTTP client, mainly for tests.
func WithPredictor(p Predictor) Option {
	return func(s *Service) {
		if p != nil {
			s.predictor = p
		}
	}
}

// WithWorkerCount sets the number of invocation workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the invocation queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many submission request ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithGrowthModels sets the models a growth submission uses by default.
func WithGrowthModels(models []string) Option {
	return func(s *Service) {
		if len(models) > 0 {
			s.growthModels = append([]string(nil), models...)
		}
	}
}

// WithClimateModel sets the id used for climate rounds.
func WithClimateModel(id string) Option {
	return func(s *Service) {
		if id != "" {
			s.climateModel = id
		}
	}
}

// WithClimateFields sets the bio variables a climate record must carry.
func WithClimateFields(fields []string) Option {
	return func(s *Service) {
		if len(fields) > 0 {
			s.climateFields = append([]string(nil), fields...)
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
