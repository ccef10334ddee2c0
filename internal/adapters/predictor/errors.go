package predictor

import "errors"

// Sentinel errors for the catalog calls. Predictions never return errors;
// their failures are typed results.
var (
	ErrInvalidBaseURL = errors.New("invalid prediction service base url")
	ErrCatalog        = errors.New("prediction service catalog request failed")
)
