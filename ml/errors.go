package ml

import "errors"

// Lifecycle and prediction failures, matched by callers with errors.Is.
var (
	ErrTraining          = errors.New("model training failed")
	ErrPersist           = errors.New("model persistence failed")
	ErrCorruptArtifact   = errors.New("model artifact is corrupt")
	ErrModelUnavailable  = errors.New("model unavailable")
	ErrInvalidRequest    = errors.New("invalid prediction request")
	ErrPrediction        = errors.New("prediction failed")
	ErrRetrainInProgress = errors.New("retrain already in progress")
)
