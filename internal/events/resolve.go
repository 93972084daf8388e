package events

import "time"

// ResolveStart is emitted before a resource operation is dispatched.
type ResolveStart struct {
	Resource  string
	Operation string
	Shape     string
}

// ResolveFinish is emitted once the operation's result has settled. Pending
// reports whether the result had to wait for an async value.
type ResolveFinish struct {
	Resource  string
	Operation string
	Shape     string
	Pending   bool
	Err       error
	Duration  time.Duration
}
