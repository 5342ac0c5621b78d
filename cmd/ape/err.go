package main

import (
	"github.com/ezrec/ape/translate"
)

var f = translate.From

// ErrDefineSyntax is a -D argument that is not NAME=VALUE.
type ErrDefineSyntax string

func (err ErrDefineSyntax) Error() string {
	return f("-D %q: expected NAME=VALUE", string(err))
}
