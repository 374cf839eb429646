package config

import "errors"

var (
	// ErrInvalidCacheBackend is returned when cache.backend names an unknown backend.
	ErrInvalidCacheBackend = errors.New("invalid cache backend")

	// ErrDefaultsNotStruct is returned when WithDefaults is given a non-struct.
	ErrDefaultsNotStruct = errors.New("defaults must be a struct")
)
