package models

import "errors"

// Custom errors
var (
	ErrNotFound           = errors.New("record not found")
	ErrDuplicateKey       = errors.New("duplicate key violation")
	ErrInvalidID          = errors.New("invalid ID format")
	ErrInvalidTransition  = errors.New("invalid backtest status transition")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUsernameTaken      = errors.New("username already exists")
	ErrEmailTaken         = errors.New("email already exists")
	ErrInvalidSymbol      = errors.New("invalid symbol")
)
