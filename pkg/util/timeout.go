package util

import (
	"context"
	"errors"
	"net"
)

// IsTimeoutError reports whether err is a context deadline or a network
// timeout, as opposed to any other transport failure.
func IsTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
