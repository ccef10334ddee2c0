package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	service "github.com/okian/agropredict/internal/app"
	"github.com/okian/agropredict/internal/domain/model"
)

const (
	// RequestIDHeader may carry the submission request id instead of the body.
	RequestIDHeader = "X-Request-ID"

	maxWait      = time.Minute
	maxBodyBytes = 64 << 10
)

// predictRequest mirrors the OpenAPI schema for POST /predict/{domain}.
// An absent models field decodes to nil and selects the default models.
type predictRequest struct {
	Input     model.InputRecord `json:"input"`
	Models    []string          `json:"models"`
	RequestID string            `json:"request_id"`
}

func (p predictRequest) validate() error {
	if p.Input == nil {
		return errors.New("missing input")
	}
	for _, m := range p.Models {
		if strings.TrimSpace(m) == "" {
			return errors.New("models must not contain empty names")
		}
	}
	return nil
}

// PredictHandler handles submissions and session state reads.
type PredictHandler struct {
	deps Dependencies
}

// NewPredictHandler creates a new predict handler.
func NewPredictHandler(deps Dependencies) *PredictHandler {
	return &PredictHandler{deps: deps}
}

// HandleSubmit handles POST /predict/{domain} requests. With ?wait=<duration>
// it blocks until the new round settles or the wait elapses.
func (h *PredictHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit"
	domain, err := model.ParseDomain(r.PathValue("domain"))
	if err != nil {
		writeServiceError(w, op, WrapKind(op, ErrUnknownDomain, err))
		return
	}
	wait, err := parseWait(r)
	if err != nil {
		writeServiceError(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}

	var req predictRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeServiceError(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := req.validate(); err != nil {
		writeServiceError(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get(RequestIDHeader)
	}

	res, err := h.deps.Submit(r.Context(), domain, service.Submission{
		Input:     req.Input,
		Models:    req.Models,
		RequestID: req.RequestID,
	})
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	if res.Duplicate {
		writeJSON(w, http.StatusOK, res)
		return
	}
	if wait > 0 && res.State.Phase == model.PhasePending {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		st, err := h.deps.AwaitRound(ctx, domain, res.RoundID)
		switch {
		case err == nil:
			res.State = st
		case errors.Is(err, context.DeadlineExceeded):
			// not settled in time; report what is known
			if cur, serr := h.deps.State(domain); serr == nil && cur.RoundID == res.RoundID {
				res.State = cur
			}
		default:
			writeServiceError(w, op, err)
			return
		}
	}
	status := http.StatusAccepted
	if res.State.Phase == model.PhaseSettled {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// HandleState handles GET /predict/{domain} requests.
func (h *PredictHandler) HandleState(w http.ResponseWriter, r *http.Request) {
	const op = "api.state"
	domain, err := model.ParseDomain(r.PathValue("domain"))
	if err != nil {
		writeServiceError(w, op, WrapKind(op, ErrUnknownDomain, err))
		return
	}
	wait, err := parseWait(r)
	if err != nil {
		writeServiceError(w, op, WrapKind(op, ErrBadRequest, err))
		return
	}

	var st model.SessionState
	if wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		st, err = h.deps.Await(ctx, domain)
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, service.ErrSuperseded) {
			st, err = h.deps.State(domain)
		}
	} else {
		st, err = h.deps.State(domain)
	}
	if err != nil {
		writeServiceError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// parseWait reads ?wait=. A bare number is taken as seconds.
func parseWait(r *http.Request) (time.Duration, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("wait"))
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		secs, serr := strconv.ParseFloat(raw, 64)
		if serr != nil {
			return 0, fmt.Errorf("invalid wait %q: %w", raw, err)
		}
		d = time.Duration(secs * float64(time.Second))
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid wait %q: negative", raw)
	}
	return min(d, maxWait), nil
}
