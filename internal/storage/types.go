package storage

import (
	"errors"
	"time"

	"github.com/scrypster/agentmemory/pkg/types"
)

var (
	// ErrNotFound indicates that the requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")
)

// DefaultQueryLimit applies when EventQuery.Limit is zero.
const DefaultQueryLimit = 100

// MaxQueryLimit caps EventQuery.Limit.
const MaxQueryLimit = 1000

// EventQuery filters events. Zero-valued fields don't filter.
type EventQuery struct {
	// Since is an inclusive lower bound on created_at.
	Since time.Time

	// Until is an exclusive upper bound on created_at.
	Until time.Time

	// AgentType restricts results to one producing agent.
	AgentType types.AgentType

	// EventTypes restricts results to any of the given event types.
	EventTypes []types.EventType

	// IncludeResolved includes events whose status is resolved.
	// By default only active and unknown-status events are returned.
	IncludeResolved bool

	// SummaryContains is a case-insensitive substring match on the summary.
	SummaryContains string

	// EmailID, TaskID and DelegationID match related-entity references.
	// When more than one is set they are combined with OR.
	EmailID      string
	TaskID       string
	DelegationID string

	// Limit is the maximum number of rows (default DefaultQueryLimit).
	Limit int

	// Ascending orders by created_at oldest first. Default is newest first.
	Ascending bool
}

// HasKey reports whether any related-entity key is set.
func (q EventQuery) HasKey() bool {
	return q.EmailID != "" || q.TaskID != "" || q.DelegationID != ""
}

// EffectiveLimit returns the limit to apply, after defaults and capping.
func (q EventQuery) EffectiveLimit() int {
	switch {
	case q.Limit <= 0:
		return DefaultQueryLimit
	case q.Limit > MaxQueryLimit:
		return MaxQueryLimit
	}
	return q.Limit
}
