package alarm

import "errors"

var (
	// ErrInvalidRule is a configuration error: the engine must not start with it
	ErrInvalidRule = errors.New("invalid alarm rule")

	ErrMissingRule      = errors.New("missing alarm rule")
	ErrInvalidSuppress  = errors.New("invalid suppression settings")
	ErrDuplicateRule    = errors.New("duplicate alarm rule")
	ErrUnknownParameter = errors.New("unknown parameter")
)
