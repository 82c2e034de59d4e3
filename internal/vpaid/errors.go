package vpaid

import (
	"errors"
	"fmt"
)

var (
	// ErrCreativeParse is returned by Init when creative parameters are
	// missing or malformed. The adapter cannot continue.
	ErrCreativeParse = errors.New("creative parameters invalid")

	// ErrMediaSourceUnavailable is reported to the host through AdError when
	// no candidate video is playable. It never crosses the host boundary as
	// a return value.
	ErrMediaSourceUnavailable = errors.New("no playable media source")

	// ErrProtocolMisuse labels operations invoked in a state that does not
	// accept them. Such calls are absorbed as no-ops.
	ErrProtocolMisuse = errors.New("operation not valid in current state")
)

// CreativeParseError describes why creative parameters were rejected
type CreativeParseError struct {
	Reason string
	Err    error
}

func (e *CreativeParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("creative parameters: %s: %v", e.Reason, e.Err)
	}
	return "creative parameters: " + e.Reason
}

func (e *CreativeParseError) Unwrap() error {
	return e.Err
}

// Is matches ErrCreativeParse
func (e *CreativeParseError) Is(target error) bool {
	return target == ErrCreativeParse
}
