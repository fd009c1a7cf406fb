package client

import "errors"

var (
	ErrUnavailable  = errors.New("ledger service unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
)
