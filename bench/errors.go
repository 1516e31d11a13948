package bench

import (
	"errors"

	"github.com/weiihann/synthbench/buffer"
)

var (
	// ErrConfig marks malformed, missing or out-of-range configuration.
	// It is always detected before any allocation.
	ErrConfig = errors.New("invalid configuration")

	// ErrInterrupted is returned by Run when an interrupt finalized the
	// run first. The partial report has already been emitted.
	ErrInterrupted = errors.New("benchmark interrupted")

	// ErrResourceExhausted is returned when the work buffer cannot be
	// provisioned.
	ErrResourceExhausted = buffer.ErrResourceExhausted
)
