package social

import "errors"

// Sentinel errors returned by Store implementations. Handlers map these
// to envelope codes; anything else is an internal error.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates a uniqueness violation, such as a taken
	// username or an edge that already exists.
	ErrDuplicate = errors.New("already exists")

	// ErrBlocked indicates a follow was refused because a block exists
	// between the two users, in either direction.
	ErrBlocked = errors.New("blocked")

	// ErrSelfAction indicates a user tried to follow or block themselves.
	ErrSelfAction = errors.New("cannot target self")
)
