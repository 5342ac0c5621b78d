package device

import (
	"errors"

	"github.com/ezrec/ape/translate"
)

var f = translate.From

var (
	// Image errors
	ErrImageTooLarge = errors.New(f("image larger than device"))
	ErrImageEmpty    = errors.New(f("image empty"))
	ErrReadOnly      = errors.New(f("device is read-only"))
)
