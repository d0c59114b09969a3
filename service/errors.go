package service

import "errors"

var (
	// ErrCollectionNotInitialized means retrieval was attempted before
	// ingestion populated the vector collection. Fatal to the call; the
	// caller must run setup first.
	ErrCollectionNotInitialized = errors.New("vector collection not initialized: run setup first")

	// ErrNormalizationFailed means the completion provider returned a
	// response that does not fit the intent schema. Recovered locally by
	// searching with the raw query.
	ErrNormalizationFailed = errors.New("query normalization failed")
)
