// Copyright (C) The LLM Sentinel Authors.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package sentinelerr holds the sentinel error values the core raises
// at construction time and the pipeline checks with errors.Is. Every
// other error path (per-event validation failure, storage write
// failure, transport failure) is reported by wrapping one of these or,
// where no categorization is useful, a plain fmt.Errorf.
package sentinelerr

import "errors"

var (
	// ErrNoDetectorsEnabled is returned by engine construction when the
	// caller supplies zero enabled detectors. This is a configuration
	// error: fatal at startup, never recovered at runtime.
	ErrNoDetectorsEnabled = errors.New("sentinel: no detectors enabled")

	// ErrInvalidCapacity describes a rolling window or baseline store
	// capacity below the minimum usable size. Neither
	// stats.NewRollingWindow nor baseline.NewStore checks capacity, so
	// no function in this module returns it.
	ErrInvalidCapacity = errors.New("sentinel: window capacity must be >= 1")

	// ErrValidation wraps a per-event field-constraint failure. Callers
	// compare with errors.Is; the wrapped message carries the specific
	// field and bound that was violated.
	ErrValidation = errors.New("sentinel: event failed validation")
)
