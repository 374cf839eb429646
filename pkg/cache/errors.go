package cache

import "errors"

var (
	// ErrAddrRequired is returned when the Redis address is empty.
	ErrAddrRequired = errors.New("redis addr is required")

	// ErrClosed is returned by a Memory cache after Close.
	ErrClosed = errors.New("cache closed")
)
