package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound     = errors.New("no records for zone")
	ErrInvalidLimit = errors.New("invalid history limit")
	ErrInvalidZone  = errors.New("invalid zone name")
	ErrClosed       = errors.New("store closed")
)
