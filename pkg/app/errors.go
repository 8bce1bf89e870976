package app

import "errors"

var (
	ErrFragmentTooLarge = errors.New("app: encoded objects exceed the configured max fragment size")
	ErrNoSelect         = errors.New("app: OPERATE received with no matching prior SELECT")
	ErrSelectTimeout    = errors.New("app: OPERATE received after the select window expired")
	ErrSelectMismatch   = errors.New("app: OPERATE objects do not match the prior SELECT")
)
