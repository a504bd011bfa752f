package store

import "errors"

var (
	ErrBranchNotFound  = errors.New("branch not found")
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrInvalidState    = errors.New("invalid ticket state")
	ErrAlreadyCalled   = errors.New("group already has a called ticket")
	ErrInvalidInput    = errors.New("invalid input")
	ErrSessionNotFound = errors.New("session not found")
	ErrStatsRecording  = errors.New("stats recording failed")
)
