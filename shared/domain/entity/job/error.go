package job

import "errors"

var (
	ErrJobNotFound            = errors.New("import job not found")
	ErrAlreadyTerminal        = errors.New("import job already terminal")
	ErrInvalidStateTransition = errors.New("invalid import job state transition")
)
