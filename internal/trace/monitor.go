package trace

import "fmt"

// Identity selects how much of a node token identifies the node.
type Identity string

const (
	// IdentityFull compares whole node tokens.
	IdentityFull Identity = "full"
	// IdentityFirstChar compares only the first character of the node token.
	// It is only sound for clusters of fewer than ten nodes.
	IdentityFirstChar Identity = "first-char"
)

func (id Identity) key(node string) string {
	if id == IdentityFirstChar && len(node) > 1 {
		return node[:1]
	}

	return node
}

func (id Identity) validate() error {
	switch id {
	case "", IdentityFull, IdentityFirstChar:
		return nil
	default:
		return fmt.Errorf("unknown node identity %q", id)
	}
}

// Reason says how an event broke mutual exclusion.
type Reason string

const (
	// Collision is an Enter while another node holds the critical section.
	Collision Reason = "collision"
	// OrphanLeave is a Leave while nobody holds the critical section.
	OrphanLeave Reason = "orphan-leave"
	// MismatchedLeave is a Leave by a node other than the holder.
	MismatchedLeave Reason = "mismatched-leave"
)

// Monitor is the scan state: at most one outstanding, unmatched Enter.
// The zero value is an empty monitor comparing full node tokens.
type Monitor struct {
	identity Identity
	holder   Event
	held     bool
}

// NewMonitor returns an empty monitor.
func NewMonitor(identity Identity) Monitor {
	return Monitor{identity: identity}
}

// Holder returns the Enter event of the node currently in the critical
// section, if any.
func (m Monitor) Holder() (Event, bool) {
	return m.holder, m.held
}

// Step applies ev and returns the next state. A non-empty Reason means ev
// violated mutual exclusion; the returned monitor is then unchanged.
func (m Monitor) Step(ev Event) (Monitor, Reason) {
	switch ev.Kind {
	case Enter:
		if m.held {
			return m, Collision
		}
		m.holder, m.held = ev, true
	case Leave:
		if !m.held {
			return m, OrphanLeave
		}
		if m.identity.key(ev.Node) != m.identity.key(m.holder.Node) {
			return m, MismatchedLeave
		}
		m.holder, m.held = Event{}, false
	}

	return m, ""
}
