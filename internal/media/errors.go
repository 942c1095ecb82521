package media

import "errors"

var (
	ErrUnsupportedType = errors.New("unsupported media type")
	ErrTooLarge        = errors.New("file too large")
	ErrEmpty           = errors.New("empty file")
)
