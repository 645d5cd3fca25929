package types

import "time"

// EventStatus is the explicit resolution state of a memory event.
//
// The zero value is meaningful: rows written before status tracking existed
// carry no status and are treated as active by every read path.
type EventStatus string

// Event status constants
const (
	StatusUnknown  EventStatus = ""         // Legacy row, treated as active
	StatusActive   EventStatus = "active"   // Requires forward-looking attention
	StatusResolved EventStatus = "resolved" // Confirmed handled by the operator
)

// IsValidStatusTransition validates status transitions.
//
// Valid transitions:
//
//	(empty) -> active | resolved
//	active  -> resolved
//	resolved -> (terminal)
func IsValidStatusTransition(current, next EventStatus) bool {
	switch current {
	case StatusUnknown:
		return next == StatusActive || next == StatusResolved
	case StatusActive:
		return next == StatusResolved
	default:
		return false
	}
}

// AnnotationStatus tags what an annotation says about its event.
type AnnotationStatus string

// Annotation status constants
const (
	AnnotationResolved  AnnotationStatus = "resolved"  // The issue was handled
	AnnotationIncorrect AnnotationStatus = "incorrect" // The finding was wrong
	AnnotationOutdated  AnnotationStatus = "outdated"  // The finding no longer applies
	AnnotationNote      AnnotationStatus = "note"      // Free-form operator note
)

// IsValidAnnotationStatus checks if the given annotation status is known.
func IsValidAnnotationStatus(status AnnotationStatus) bool {
	switch status {
	case AnnotationResolved, AnnotationIncorrect, AnnotationOutdated, AnnotationNote:
		return true
	}
	return false
}

// Annotation is one timestamped operator note attached to an event.
type Annotation struct {
	Timestamp time.Time        `json:"timestamp"`
	Note      string           `json:"note"`
	Status    AnnotationStatus `json:"status"`
}
