package models

import "time"

// ConnState is the current belief about remote reachability.
type ConnState string

const (
	ConnUnknown     ConnState = "unknown"
	ConnReachable   ConnState = "reachable"
	ConnUnreachable ConnState = "unreachable"
)

// ConnectivityState is owned exclusively by the connection monitor and read
// by value everywhere else. It is never persisted.
type ConnectivityState struct {
	State                ConnState
	ConsecutiveSuccesses int
	ConsecutiveFailures  int
	LastCheckedAt        time.Time
}
