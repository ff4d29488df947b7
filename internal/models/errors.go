package models

import "errors"

// Custom errors
var (
	ErrNotFound       = errors.New("record not found")
	ErrAlreadySettled = errors.New("prediction already settled")
	ErrInvalidOutcome = errors.New("invalid outcome transition")
	ErrInvalidRecord  = errors.New("invalid prediction record")
)
