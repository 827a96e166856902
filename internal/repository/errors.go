package repository

import (
	"errors"
)

// ErrLeaseNotFound is returned by writes that matched no lease row
var ErrLeaseNotFound = errors.New("lease not found")
