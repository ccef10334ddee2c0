// Package model contains domain models passed between layers.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Domain names one of the independent prediction workflows.
type Domain string

// Known domains.
const (
	DomainGrowth  Domain = "growth"
	DomainClimate Domain = "climate"
)

// ParseDomain accepts the canonical names plus "astragalus" as an alias for growth.
func ParseDomain(s string) (Domain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "growth", "astragalus":
		return DomainGrowth, nil
	case "climate":
		return DomainClimate, nil
	}
	return "", fmt.Errorf("unknown domain %q", s)
}

// InputRecord maps field names to numeric values for one submission.
type InputRecord map[string]float64

// Clone returns an independent copy.
func (r InputRecord) Clone() InputRecord {
	out := make(InputRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ModelID is an opaque model name supplied by the prediction service.
type ModelID string

// ErrorKind classifies a failed model invocation. The zero value means success.
type ErrorKind string

// Failure kinds.
const (
	KindValidation   ErrorKind = "validation"
	KindNetwork      ErrorKind = "network"
	KindTimeout      ErrorKind = "timeout"
	KindServiceError ErrorKind = "service_error"
	KindRejected     ErrorKind = "rejected"
)

// ModelResult is the immutable outcome of one invocation.
type ModelResult struct {
	ModelID    ModelID         `json:"model_id"`
	Value      json.RawMessage `json:"value,omitempty"`
	Confidence float64         `json:"confidence"`
	Elapsed    time.Duration   `json:"elapsed_ns"`
	Kind       ErrorKind       `json:"error_kind,omitempty"`
	Message    string          `json:"error,omitempty"`

	// Arrival is the 1-based order in which the round recorded this result.
	Arrival int `json:"arrival"`
}

// OK reports whether the invocation succeeded.
func (r ModelResult) OK() bool { return r.Kind == "" }

// Success builds a successful result.
func Success(id ModelID, value json.RawMessage, confidence float64, elapsed time.Duration) ModelResult {
	return ModelResult{ModelID: id, Value: value, Confidence: confidence, Elapsed: elapsed}
}

// Failure builds a failed result.
func Failure(id ModelID, kind ErrorKind, msg string, elapsed time.Duration) ModelResult {
	return ModelResult{ModelID: id, Kind: kind, Message: msg, Elapsed: elapsed}
}

// Request is a well-formed prediction call for one model.
type Request struct {
	Domain  Domain
	ModelID ModelID
	// Path is relative to the prediction service base URL.
	Path string
	Body map[string]any
}

// Invocation is a unit of work handed to a dispatcher. Ctx is the owning
// round's context; Deliver is called at most once and only with a result.
type Invocation struct {
	RoundID uint64
	Request Request
	Ctx     context.Context //nolint:containedctx // carries round cancellation across the queue
	Deliver func(ModelResult)
}
