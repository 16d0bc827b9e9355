package store

import (
	"github.com/xtxerr/gridpower/internal/errors"
)

var (
	ErrUnknownChannel = errors.ErrUnknownChannel
)
