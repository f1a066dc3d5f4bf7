package domain

import "errors"

var (
	ErrPersonaNotFound    = errors.New("persona not found")
	ErrTokenMissing       = errors.New("set a Telegram Bot Token first")
	ErrDestinationMissing = errors.New("set a Chat ID for this bot first")
	ErrDeliveryFailed     = errors.New("telegram delivery failed")
	ErrMalformedMessage   = errors.New("malformed client message")
)
