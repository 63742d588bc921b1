package agenda

import "errors"

// Error classes shared by the store, the service, the HTTP client and the engine.
// Callers match them with errors.Is; the wrapped message carries the detail.
var (
	// ErrConflict means the shift or the whole day is already committed.
	ErrConflict = errors.New("slot unavailable")
	// ErrValidation means the request was malformed and never reached the store.
	ErrValidation = errors.New("invalid request")
	// ErrNotFound means the referenced record no longer exists.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable means the backing store could not be reached.
	ErrUnavailable = errors.New("agenda store unavailable")
	// ErrForbidden means the caller may not act in the requested scope.
	ErrForbidden = errors.New("forbidden")
	// ErrBusy means another mutation is still in flight for the same view.
	ErrBusy = errors.New("another change is still being saved")
)
