package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrChannelInaccessible marks a private, banned or unknown channel.
	ErrChannelInaccessible = errors.New("channel is not accessible")
	// ErrMediaUnavailable is returned when a post's media cannot be fetched.
	ErrMediaUnavailable = errors.New("media is not downloadable")
)

// ThrottleError is the upstream "wait N seconds" signal.
type ThrottleError struct {
	Wait time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("upstream throttled, retry after %s", e.Wait)
}

// AsThrottle extracts a ThrottleError from err.
func AsThrottle(err error) (*ThrottleError, bool) {
	var throttle *ThrottleError
	if errors.As(err, &throttle) {
		return throttle, true
	}
	return nil, false
}
