package sparql

import (
	"errors"
	"fmt"
)

// Kind classifies a failed query.
type Kind string

const (
	KindTransport   Kind = "transport"   // request did not complete
	KindStatus      Kind = "status"      // endpoint answered with a non-2xx status
	KindUnparseable Kind = "unparseable" // body is not a SPARQL JSON result
)

var (
	// ErrTransport matches transport and status failures.
	ErrTransport = errors.New("sparql: transport failure")
	// ErrUnparseable matches responses that are not a SPARQL JSON result.
	ErrUnparseable = errors.New("sparql: unparseable response")
)

// QueryError describes a failed call against an endpoint.
type QueryError struct {
	Kind     Kind
	Endpoint string
	Status   int
	Err      error
}

func (e *QueryError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("sparql %s: %s returned status %d", e.Kind, e.Endpoint, e.Status)
	}
	return fmt.Sprintf("sparql %s: %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Is lets errors.Is match the package sentinels by kind.
func (e *QueryError) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Kind == KindTransport || e.Kind == KindStatus
	case ErrUnparseable:
		return e.Kind == KindUnparseable
	}
	return false
}
