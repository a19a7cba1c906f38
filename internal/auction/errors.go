package auction

import "errors"

// Error taxonomy surfaced at the request boundary. Handlers map these to
// HTTP status codes; they never crash the process.
var (
	// ErrNotFound: entity absent, or the caller is not allowed to see it.
	ErrNotFound = errors.New("not found")
	// ErrConflict: an invariant rejected the request (duplicate join,
	// price not exceeded, product already captured, status advanced).
	ErrConflict = errors.New("conflict")
	// ErrForbidden: the caller may not perform the action in the current
	// state (e.g. delete with participants, bid without paid join).
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized: webhook signature verification failed.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrExternalService: a gateway call failed or timed out.
	ErrExternalService = errors.New("external service failure")
	// ErrIntegrity: a should-be-impossible state was observed, e.g. a
	// closed auction with a winner but no paid join record.
	ErrIntegrity = errors.New("integrity fault")
)
