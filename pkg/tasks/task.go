// Package tasks runs deferred per-ticket work: AI collection turns and
// tenant API dispatch. Tasks live in a Redis sorted set scored by due time
// and are executed by a bounded worker pool under a per-ticket lock.
package tasks

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Kind selects the coordinator a task runs.
type Kind string

const (
	KindCollect  Kind = "collect"
	KindDispatch Kind = "dispatch"
)

// Task is one unit of deferred work for a ticket.
type Task struct {
	Kind     Kind
	TicketID uuid.UUID
}

// Member is the sorted-set member for the task. Each ticket has exactly one
// member per kind, so scheduling again only moves the due time.
func (t Task) Member() string {
	return string(t.Kind) + ":" + t.TicketID.String()
}

// ParseMember reverses Member.
func ParseMember(s string) (Task, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return Task{}, fmt.Errorf("malformed task %q", s)
	}
	switch Kind(kind) {
	case KindCollect, KindDispatch:
	default:
		return Task{}, fmt.Errorf("unknown task kind %q", kind)
	}
	ticketID, err := uuid.Parse(id)
	if err != nil {
		return Task{}, fmt.Errorf("malformed task ticket id %q: %w", id, err)
	}
	return Task{Kind: Kind(kind), TicketID: ticketID}, nil
}
