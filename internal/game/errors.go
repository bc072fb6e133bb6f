package game

import "errors"

var (
	ErrInvalidBet       = errors.New("invalid bet")
	ErrSpinInProgress   = errors.New("spin in progress")
	ErrNoSpinInProgress = errors.New("no spin in progress")
	ErrInvalidOutcome   = errors.New("invalid outcome")
	ErrSessionNotFound  = errors.New("session not found")
	ErrSessionClosed    = errors.New("session closed")
)
