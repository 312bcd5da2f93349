package model

import (
	"errors"
)

var (
	ErrEmptyBatch = errors.New("empty block list")
	ErrBadBlock   = errors.New("malformed block number")
	ErrBadStream  = errors.New("unknown log stream")
)
