package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/okian/agropredict/internal/domain/model"
)

// Report is the printed form of a settled round.
type Report struct {
	Domain    model.Domain          `json:"domain" yaml:"domain"`
	RoundID   uint64                `json:"round_id" yaml:"round_id"`
	Status    model.AggregateStatus `json:"status" yaml:"status"`
	Requested int                   `json:"requested" yaml:"requested"`
	Best      *ResultView           `json:"best,omitempty" yaml:"best,omitempty"`
	Results   []ResultView          `json:"results" yaml:"results"`
}

// ResultView is one model result with its payload decoded.
type ResultView struct {
	Model      string         `json:"model" yaml:"model"`
	Confidence float64        `json:"confidence,omitempty" yaml:"confidence,omitempty"`
	ElapsedMS  int64          `json:"elapsed_ms" yaml:"elapsed_ms"`
	Error      string         `json:"error,omitempty" yaml:"error,omitempty"`
	Message    string         `json:"message,omitempty" yaml:"message,omitempty"`
	Value      map[string]any `json:"value,omitempty" yaml:"value,omitempty"`
}

// NewReport builds a report from a session state.
func NewReport(st model.SessionState) Report {
	r := Report{Domain: st.Domain, RoundID: st.RoundID, Results: []ResultView{}}
	if st.Aggregate == nil {
		return r
	}
	r.Status = st.Aggregate.Status
	r.Requested = st.Aggregate.Requested
	for _, res := range st.Aggregate.All {
		r.Results = append(r.Results, viewOf(res))
	}
	if st.Aggregate.Best != nil {
		best := viewOf(*st.Aggregate.Best)
		r.Best = &best
	}
	return r
}

func viewOf(res model.ModelResult) ResultView { //nolint:gocritic // hugeParam: read-only
	v := ResultView{
		Model:      string(res.ModelID),
		Confidence: res.Confidence,
		ElapsedMS:  res.Elapsed.Milliseconds(),
		Error:      string(res.Kind),
		Message:    res.Message,
	}
	if v.Model == "" {
		v.Model = "(service default)"
	}
	if len(res.Value) > 0 {
		_ = json.Unmarshal(res.Value, &v.Value)
	}
	return v
}

// Render writes v to w in format.
func Render(w io.Writer, format string, v any) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: unknown format %q", ErrUsage, format)
}
