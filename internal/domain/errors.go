package domain

import (
	"errors"
	"fmt"
)

// Kind decides what the pipeline does with a failure.
type Kind int

const (
	// KindTransient failures are retried with backoff. Unclassified errors
	// are treated as transient.
	KindTransient Kind = iota
	// KindIngestion marks a malformed or unsigned request.
	KindIngestion
	// KindSecurity marks content rejected by the security filter.
	KindSecurity
	// KindValidation marks empty requirements or an invalid plan.
	KindValidation
	// KindFatalStore marks an unavailable durable store.
	KindFatalStore
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindIngestion:
		return "ingestion"
	case KindSecurity:
		return "security"
	case KindValidation:
		return "validation"
	case KindFatalStore:
		return "fatal_store"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Retryable reports whether failures of this kind get another attempt.
func (k Kind) Retryable() bool {
	return k == KindTransient || k == KindFatalStore
}

// Error tags an underlying error with a Kind and the operation that failed.
type Error struct {
	Err  error
	Op   string
	Kind Kind
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func Ingestion(op string, err error) error  { return newError(KindIngestion, op, err) }
func Security(op string, err error) error   { return newError(KindSecurity, op, err) }
func Validation(op string, err error) error { return newError(KindValidation, op, err) }
func Transient(op string, err error) error  { return newError(KindTransient, op, err) }
func FatalStore(op string, err error) error { return newError(KindFatalStore, op, err) }

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindTransient
}

// IsKind reports whether err is classified as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
