package bus

import (
	"fmt"
	"time"
)

// ValidationError reports a malformed message. It is never retried and
// always surfaces to the caller of Send.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("message must have a %s", e.Field)
}

// AckTimeoutError reports that no correlated reply arrived within the
// caller's window.
type AckTimeoutError struct {
	MessageID string
	Timeout   time.Duration
}

func (e *AckTimeoutError) Error() string {
	return fmt.Sprintf("message %s ack timeout after %s", e.MessageID, e.Timeout)
}
