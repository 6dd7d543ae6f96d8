package internal

import "github.com/google/uuid"

// NewRequestID returns a random RFC 4122 id for correlating API calls and audit events.
func NewRequestID() string {
	return uuid.NewString()
}
