package repository

import "errors"

var (
	ErrNotFound     = errors.New("record not found")
	ErrNoRowsUpdate = errors.New("no rows affected")
)
