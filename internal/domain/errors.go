package domain

import "errors"

var (
	ErrValidation         = errors.New("validation failed")
	ErrMatchNotFound      = errors.New("match not found")
	ErrSlotTaken          = errors.New("camera slot already taken")
	ErrSlotNotFound       = errors.New("camera slot not found")
	ErrNotOwner           = errors.New("connection does not own camera slot")
	ErrInvalidSlot        = errors.New("invalid camera number")
	ErrCodeSpaceExhausted = errors.New("could not allocate a unique match code")
	ErrConnectionNotFound = errors.New("connection not found")
)
