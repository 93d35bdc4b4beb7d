package domain

import "errors"

// Repository sentinel errors, wrapped with %w and checked with errors.Is
var (
	ErrNotFound = errors.New("not found")
	ErrSelfEdge = errors.New("users cannot follow themselves")
)
