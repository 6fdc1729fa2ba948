package api

import "errors"

// Service errors. Handlers map them to HTTP status codes in statusFor.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrMemberNotFound     = errors.New("member not found")
	ErrMemberExists       = errors.New("member already exists")
	ErrShiftNotFound      = errors.New("shift not found")
	ErrNotOnShift         = errors.New("you're not on your shift")
	ErrShiftAlreadyOpen   = errors.New("a shift is already open today")
	ErrCheckinDayOver     = errors.New("the check-in day is already over")
	ErrShiftAlreadyClosed = errors.New("shift already closed")
	ErrAlreadyExcused     = errors.New("shift already excused")
	ErrBlockOutOfRange    = errors.New("block out of range")
)
