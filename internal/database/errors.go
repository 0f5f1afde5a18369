package database

import (
	"errors"

	"github.com/idoggk/moveo/pkg/interfaces"
)

var (
	ErrBlockNotFound = interfaces.ErrBlockNotFound
	ErrStoreClosed   = errors.New("block store is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
)
