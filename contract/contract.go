//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"bandmate/domain"
	"context"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself; supervision handles panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// used for logging during supervision without forcing a naming method on
// every worker.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// MessageSink is one live outbound connection. Deliver must be safe to call
// from the dispatcher goroutine and should fail fast rather than block when
// the remote side stalls.
type MessageSink interface {
	Deliver(ctx context.Context, msg domain.Message) error
}

// IRegistry tracks currently-open sessions per user. Purely in-memory and
// process-local; rebuilt from nothing on restart.
type IRegistry interface {
	Register(userID string, sessionID string, sink MessageSink)
	Unregister(sessionID string)
	SessionsFor(userID string) []MessageSink
}

// Broadcaster accepts persisted messages for best-effort live fan-out.
// Enqueue never blocks and never reports delivery failures to the caller;
// the persisted message is the record of truth.
type Broadcaster interface {
	Enqueue(msg domain.Message)
}
