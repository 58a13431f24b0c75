package rag

import "net/http"

// Kind classifies a failed query by the phase that failed.
type Kind string

// Query failure kinds.
const (
	KindInvalidRequest  Kind = "invalid_request"
	KindRetrieval       Kind = "retrieval"
	KindLookup          Kind = "lookup"
	KindContextTooLarge Kind = "context_too_large"
	KindGeneration      Kind = "generation"
)

// HTTPStatus is the response status reported for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidRequest:
		return http.StatusBadRequest
	case KindContextTooLarge:
		return http.StatusUnprocessableEntity
	case KindRetrieval, KindGeneration:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// QueryError is returned by Engine.Answer.
type QueryError struct {
	Kind Kind
	Err  error
}

func (e *QueryError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }

func (e *QueryError) Unwrap() error { return e.Err }
