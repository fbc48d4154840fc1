package store

import "errors"

var ErrInvalidCursor = errors.New("invalid cursor")
