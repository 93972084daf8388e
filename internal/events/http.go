package events

import (
	"net/http"
	"time"
)

// HTTPStart is emitted when a request reaches a resource handler.
// Context carries the request ID.
type HTTPStart struct {
	Request  *http.Request
	Resource string
}

// HTTPFinish is emitted after the response was written.
type HTTPFinish struct {
	Request  *http.Request
	Resource string
	Status   int
	Duration time.Duration
}
