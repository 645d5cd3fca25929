package engine

import "errors"

var (
	// ErrInvalidEventSpec indicates an empty summary or an agent/event type
	// outside the closed vocabularies.
	ErrInvalidEventSpec = errors.New("invalid event spec")

	// ErrInvalidRequest indicates a malformed resolve, annotate, query or
	// session request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStorage indicates the memory store could not be reached or failed
	// mid-operation.
	ErrStorage = errors.New("memory storage unavailable")

	// ErrAmbiguousCorrection indicates a correction from which no topic
	// could be identified. Nothing is resolved.
	ErrAmbiguousCorrection = errors.New("ambiguous correction: no topic identified")
)
