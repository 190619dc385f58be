package persistence

import "errors"

// ErrInvalidInput is returned for records missing their conversation id.
var ErrInvalidInput = errors.New("invalid input")
