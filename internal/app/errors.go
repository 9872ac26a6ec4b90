package service

import "errors"

// Sentinel errors returned by Service.
var (
	ErrNotStarted         = errors.New("service not started")
	ErrBusy               = errors.New("engine busy")
	ErrNoRatingSource     = errors.New("no rating source configured")
	ErrHistoryUnavailable = errors.New("decision history not configured")
)
