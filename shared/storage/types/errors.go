package types

import "errors"

var (
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidLocation rejects bucket names or keys that cannot be mapped
	// to a single object, such as keys escaping their bucket.
	ErrInvalidLocation = errors.New("invalid object location")
)
