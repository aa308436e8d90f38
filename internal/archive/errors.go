package archive

import (
	"errors"
)

// Failure classes recognised across the pipeline.
var (
	// ErrTransient marks a network or service hiccup that survived its retries.
	ErrTransient = errors.New("transient external error")
	// ErrEmptyResponse marks an OCR answer without text, typically a redaction placeholder.
	ErrEmptyResponse = errors.New("copyright detection or empty response")
	// ErrMalformedSource marks a source file that cannot be read as a PDF.
	ErrMalformedSource = errors.New("malformed source document")
	// ErrImageTooLarge marks an image that stays above the size ceiling at the minimum quality.
	ErrImageTooLarge = errors.New("image exceeds size ceiling at minimum quality")
	// ErrCountMismatch marks a document whose declared and stored page counts disagree.
	ErrCountMismatch = errors.New("declared and stored page counts disagree")
	// ErrNotFound signals that the requested catalog record does not exist.
	ErrNotFound = errors.New("catalog record not found")
	// ErrDuplicate signals that a catalog insert collided with an existing record.
	ErrDuplicate = errors.New("catalog record already exists")
	// ErrQueueClosed signals that a work queue accepts no more items and is drained.
	ErrQueueClosed = errors.New("queue closed")
)

// Taxonomy labels used in logs and metrics.
const (
	ClassTransient   = "transient_external_error"
	ClassContent     = "content_unavailable"
	ClassMalformed   = "malformed_source"
	ClassExhaustion  = "resource_exhaustion"
	ClassConsistency = "consistency_mismatch"
	ClassUnexpected  = "unexpected"
	ClassNone        = "none"
)

// Classify maps err onto its taxonomy label.
func Classify(err error) string {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrEmptyResponse):
		return ClassContent
	case errors.Is(err, ErrMalformedSource):
		return ClassMalformed
	case errors.Is(err, ErrImageTooLarge):
		return ClassExhaustion
	case errors.Is(err, ErrCountMismatch):
		return ClassConsistency
	case errors.Is(err, ErrTransient):
		return ClassTransient
	default:
		return ClassUnexpected
	}
}
