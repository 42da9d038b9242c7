package engine

import "errors"

// Fatal generation failures. Per-call and per-step failures are contained
// and logged as progress steps; only these abort the whole request.
var (
	// ErrModelUnavailable means no models could be listed after retries.
	ErrModelUnavailable = errors.New("no models available")

	// ErrResponseParse means the model's final answer contained no
	// recognizable story document.
	ErrResponseParse = errors.New("no story found in model response")

	// ErrAllStepsInvalid means every step failed SQL validation and repair.
	ErrAllStepsInvalid = errors.New("no steps survived validation")
)
