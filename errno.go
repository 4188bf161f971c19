package lodestore

import "errors"

var (
	ErrInvalidAddr    = errors.New("cannot load node with an invalid address")
	errOffsetOverflow = errors.New("node offset overflow")
)
