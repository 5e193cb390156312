package storage

import "errors"

var (
	ErrEmptySessionID = errors.New("session id is empty")

	ErrCorruptRecord = errors.New("stored record is not valid")
)
