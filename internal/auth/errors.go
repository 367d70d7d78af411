package auth

import "errors"

var (
	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrInvalidToken collapses malformed, wrong-signature, expired and
	// wrong-purpose tokens into one outcome to avoid oracle leaks.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrAccountInactive is internal only; handlers fold it into the generic
	// invalid-credentials response.
	ErrAccountInactive = errors.New("auth: account inactive")
)
