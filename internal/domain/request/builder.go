// Package request turns input records into prediction service requests.
package request

import (
	"math"
	"regexp"
	"sort"

	"github.com/okian/agropredict/internal/domain/model"
)

// Collaborator endpoints, relative to the service base URL.
const (
	GrowthPredictPath  = "/api/astragalus/predict"
	ClimatePredictPath = "/api/climate/predict"
)

// GrowthFields are the required growth inputs. All are physical amounts
// and must be non-negative.
var GrowthFields = []string{"root_length", "yield", "c7g_content"}

var bioField = regexp.MustCompile(`^bio[1-9][0-9]*$`)

// Option applies a configuration option to the Builder.
type Option func(*Builder)

// WithClimateFields sets the bio variables a climate record must carry.
func WithClimateFields(fields []string) Option {
	return func(b *Builder) {
		if len(fields) > 0 {
			b.climateFields = append([]string(nil), fields...)
		}
	}
}

// Builder validates input records and produces requests. It has no side
// effects and is safe for concurrent use.
type Builder struct {
	climateFields []string
}

// NewBuilder creates a Builder with the default climate field set bio1..bio5.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		climateFields: []string{"bio1", "bio2", "bio3", "bio4", "bio5"},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// ClimateFields returns the required climate variables.
func (b *Builder) ClimateFields() []string {
	return append([]string(nil), b.climateFields...)
}

// Build validates input for domain and returns the request for modelID.
// A *ValidationError is returned when the record does not fit the domain.
func (b *Builder) Build(domain model.Domain, input model.InputRecord, modelID model.ModelID) (model.Request, error) {
	switch domain {
	case model.DomainGrowth:
		return b.growth(input, modelID)
	case model.DomainClimate:
		return b.climate(input, modelID)
	default:
		return model.Request{}, &ValidationError{Domain: domain, Reason: "unknown domain"}
	}
}

func (b *Builder) growth(input model.InputRecord, modelID model.ModelID) (model.Request, error) {
	body := make(map[string]any, len(GrowthFields)+1)
	for _, f := range GrowthFields {
		v, err := required(model.DomainGrowth, input, f)
		if err != nil {
			return model.Request{}, err
		}
		if v < 0 {
			return model.Request{}, &ValidationError{Domain: model.DomainGrowth, Field: f, Reason: "must not be negative"}
		}
		body[f] = v
	}
	if modelID != "" {
		body["model_name"] = string(modelID)
	}
	return model.Request{Domain: model.DomainGrowth, ModelID: modelID, Path: GrowthPredictPath, Body: body}, nil
}

func (b *Builder) climate(input model.InputRecord, modelID model.ModelID) (model.Request, error) {
	body := make(map[string]any, len(input))
	for _, f := range b.climateFields {
		v, err := required(model.DomainClimate, input, f)
		if err != nil {
			return model.Request{}, err
		}
		body[f] = v
	}

	// Extra bio variables are forwarded; the service ignores the ones its
	// feature selector does not use. Anything else is a caller mistake.
	extras := make([]string, 0, len(input))
	for k := range input {
		if _, ok := body[k]; !ok {
			extras = append(extras, k)
		}
	}
	sort.Strings(extras)
	for _, k := range extras {
		if !bioField.MatchString(k) {
			return model.Request{}, &ValidationError{Domain: model.DomainClimate, Field: k, Reason: "not a climate variable"}
		}
		v, err := required(model.DomainClimate, input, k)
		if err != nil {
			return model.Request{}, err
		}
		body[k] = v
	}
	return model.Request{Domain: model.DomainClimate, ModelID: modelID, Path: ClimatePredictPath, Body: body}, nil
}

func required(domain model.Domain, input model.InputRecord, field string) (float64, error) {
	v, ok := input[field]
	if !ok {
		return 0, &ValidationError{Domain: domain, Field: field, Reason: "is required"}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ValidationError{Domain: domain, Field: field, Reason: "must be a finite number"}
	}
	return v, nil
}
