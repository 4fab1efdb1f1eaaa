package classifier

import "context"

// Validator adjusts a classification before persistence and supplies a
// justification. Implementations may call out to an LLM; the default is a
// deterministic passthrough.
type Validator interface {
	Validate(ctx context.Context, text string, references []string, confidence float64) (float64, string, error)
}

// StubValidator accepts the classification unchanged.
type StubValidator struct{}

// Validate returns the confidence untouched with a fixed justification.
func (StubValidator) Validate(_ context.Context, _ string, _ []string, confidence float64) (float64, string, error) {
	return confidence, "LLM validation stub: no adjustment applied.", nil
}
