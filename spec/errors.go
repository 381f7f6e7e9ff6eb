package spec

import "errors"

var (
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrSourceUnresolved     = errors.New("source unresolved")
	ErrInstallerUnavailable = errors.New("installer unavailable")
)
