package models

import "errors"

// Sentinel errors. They stay matchable with errors.Is through serr.Wrap.
var (
	// ErrNoLowWaterMark is returned by Export when called with a zero mark.
	// There is no implicit "since the beginning" export.
	ErrNoLowWaterMark = errors.New("low-water mark is required for export")

	ErrUnknownTable    = errors.New("unknown table")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrMissingID       = errors.New("row has no id")
	ErrNotFound        = errors.New("record not found")
	ErrPruneBeyondSync = errors.New("cannot prune change logs past the last sync")
)
