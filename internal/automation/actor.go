// Package automation composes the queue engine, the external dashboard actor
// and the reconciler into one orchestration run.
package automation

import "context"

// Outcome is the result an actor reports for a single dashboard operation.
type Outcome struct {
	Success bool
	Error   string
}

// Actor is the external browser-automation session mutating the vendor
// dashboard's user list. It is a single UI session: operations must be
// sequential, and the actor owns its own operation timeouts. Open and Close
// are called exactly once per job run.
type Actor interface {
	Open(ctx context.Context) error
	AddUser(ctx context.Context, fullName, email string) Outcome
	RemoveUser(ctx context.Context, email string) Outcome
	Close(ctx context.Context) error
}
