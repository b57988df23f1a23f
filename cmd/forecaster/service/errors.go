package service

import "errors"

// ErrInvalidRequest marks request validation failures.
var ErrInvalidRequest = errors.New("invalid request")
