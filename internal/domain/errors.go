package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidPolicyAsset = errors.New("invalid policy asset provided")
	ErrQueryFailed        = errors.New("query failed")
	ErrRateLimited        = errors.New("rate limited")
	ErrLockHeld           = errors.New("lock already held")
	ErrRunInProgress      = errors.New("reconciliation run already in progress")
	ErrLedgerUnavailable  = errors.New("ledger unavailable")
)
