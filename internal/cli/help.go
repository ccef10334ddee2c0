package cli

import "io"

// ShowHelp prints usage information for the predict tool.
func ShowHelp(w io.Writer) {
	_, _ = io.WriteString(w, `agropredict predict
===================

Runs one prediction round against the prediction service and prints the
aggregate: every model result plus the most confident success.

Usage:
  go run ./cmd/predict [options]

Options:
  -domain string
        growth (alias astragalus) or climate (default "growth")
  -models string
        comma-separated model names; omit for the service defaults,
        pass "" for an empty round
  -set name=value
        input field, repeatable
  -url string
        prediction service base URL (default "http://localhost:5000")
  -format string
        json or yaml (default "json")
  -timeout duration
        per-model call timeout (default 15s)
  -list-models
        print the model catalog with comparison metrics
  -verbose
        log partial results as they arrive
  -help
        show this help message

Examples:
  # Ask two growth models
  go run ./cmd/predict -models XGBoost,KNN -set root_length=12 -set yield=300 -set c7g_content=0.05

  # Climate suitability as YAML
  go run ./cmd/predict -domain climate -set bio1=8 -set bio2=11 -set bio3=30 -set bio4=900 -set bio5=27 -format yaml

  # Model comparison table
  go run ./cmd/predict -list-models
`)
}
