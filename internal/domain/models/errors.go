package models

import "errors"

// Failure taxonomy shared by the pipeline, the usecases and the transport layer.
var (
	// ErrDataUnavailable means the ticker is unknown or delisted. Never retried.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrRateLimited is transient and retried on the long backoff tier.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransientFetch is retried on the standard backoff tier.
	ErrTransientFetch = errors.New("transient fetch error")

	ErrInsufficientData = errors.New("insufficient data")
	ErrInsufficientSeed = errors.New("insufficient seed")

	// ErrArtifactNotFound means no model was trained for the key yet.
	ErrArtifactNotFound = errors.New("artifact not found")

	ErrTrainingInProgress = errors.New("training already in progress")
	ErrInvalidModelType   = errors.New("invalid model type")
	ErrInvalidPeriodUnit  = errors.New("invalid period unit")
)
