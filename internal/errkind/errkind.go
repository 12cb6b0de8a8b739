// Package errkind classifies fallible operations across the ingestion
// pipeline into a small, stable taxonomy so callers can branch on failure
// class (retry, surface to the caller, escalate to the dead-letter queue)
// without depending on a specific package's concrete error type.
package errkind

import "errors"

// Kind is one of the closed set of error classes produced by the pipeline.
type Kind string

const (
	Validation           Kind = "validation"
	AuthZ                Kind = "authz"
	SourceRetriable      Kind = "source_retriable"
	SourcePermanent      Kind = "source_permanent"
	CircuitOpen          Kind = "circuit_open"
	ExtractionSoftFail   Kind = "extraction_soft_fail"
	ExtractionFailed     Kind = "extraction_failed"
	IdempotencyConflict  Kind = "idempotency_conflict"
	PersistenceRetriable Kind = "persistence_retriable"
	PersistencePermanent Kind = "persistence_permanent"
	SyncConflict         Kind = "sync_conflict"
	Cancelled            Kind = "cancelled"
)

// classified wraps an underlying error with its assigned Kind.
type classified struct {
	kind Kind
	err  error
}

func (c *classified) Error() string { return c.err.Error() }
func (c *classified) Unwrap() error { return c.err }

// Wrap annotates err with the given Kind. Wrapping a nil error returns nil.
func Wrap(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &classified{kind: kind, err: err}
}

// Of extracts the Kind attached to err via Wrap, if any.
func Of(err error) (Kind, bool) {
	var c *classified
	if errors.As(err, &c) {
		return c.kind, true
	}
	return "", false
}

// Is reports whether err was wrapped with the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}

// Retriable reports whether the error's kind represents a condition the
// caller should retry (as opposed to surfacing immediately or dead-lettering).
func Retriable(err error) bool {
	k, ok := Of(err)
	if !ok {
		return false
	}
	switch k {
	case SourceRetriable, PersistenceRetriable:
		return true
	default:
		return false
	}
}
