package model

import "errors"

var (
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrPlatformTransient = errors.New("platform request failed")
	ErrLedgerAnomaly     = errors.New("ledger anomaly")
)
