package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

const maxLineSize = 1024 * 1024

// Options configures a verification run.
type Options struct {
	Format   Format
	Identity Identity

	// AllowUnclosed accepts a trace that ends while a node is still inside
	// the critical section.
	AllowUnclosed bool
	// Strict rejects lines that are not events instead of skipping them.
	Strict bool

	// KindPath and NodePath are gjson paths used by FormatJSONL.
	KindPath string
	NodePath string
}

// Status is the outcome of a verification run.
type Status int

const (
	Verified Status = iota
	Violated
	Unclosed
)

func (s Status) String() string {
	switch s {
	case Verified:
		return "verified"
	case Violated:
		return "violation"
	case Unclosed:
		return "unclosed"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Verdict reports the first violation found, or success.
type Verdict struct {
	Status Status `json:"status"`
	Reason Reason `json:"reason,omitempty"`
	// Event is the offending event. Its Line is the position in the stream.
	Event *Event `json:"event,omitempty"`
	// Holder is the Enter of the node in the critical section when the run
	// stopped, if any.
	Holder *Event `json:"holder,omitempty"`
	// Events is the number of events consumed.
	Events int `json:"events"`
}

// OK reports whether the trace upholds mutual exclusion.
func (v Verdict) OK() bool {
	return v.Status == Verified
}

// Err returns nil for a verified trace and an error wrapping ErrViolation
// otherwise.
func (v Verdict) Err() error {
	if v.OK() {
		return nil
	}

	return fmt.Errorf("%w: %s", ErrViolation, v)
}

func (v Verdict) String() string {
	switch v.Status {
	case Verified:
		return fmt.Sprintf("verified %d events", v.Events)
	case Unclosed:
		if v.Holder == nil {
			return "trace ended inside the critical section"
		}
		return fmt.Sprintf("node %s entered at line %d and never left", v.Holder.Node, v.Holder.Line)
	}

	if v.Event == nil {
		if v.Reason == "" {
			return v.Status.String()
		}
		return fmt.Sprintf("%s %s", v.Status, v.Reason)
	}

	holder := "nobody"
	if v.Holder != nil {
		holder = fmt.Sprintf("node %s (line %d)", v.Holder.Node, v.Holder.Line)
	}

	switch v.Reason {
	case Collision:
		return fmt.Sprintf("collision at line %d: node %s entered while %s was inside",
			v.Event.Line, v.Event.Node, holder)
	case OrphanLeave:
		return fmt.Sprintf("orphan leave at line %d: node %s left but nobody was inside",
			v.Event.Line, v.Event.Node)
	default:
		return fmt.Sprintf("mismatched leave at line %d: node %s left while %s was inside",
			v.Event.Line, v.Event.Node, holder)
	}
}

func violation(m Monitor, ev Event, reason Reason, events int) Verdict {
	verdict := Verdict{Status: Violated, Reason: reason, Event: &ev, Events: events}
	if holder, ok := m.Holder(); ok {
		verdict.Holder = &holder
	}

	return verdict
}

func final(m Monitor, events int, allowUnclosed bool) Verdict {
	holder, ok := m.Holder()
	if ok && !allowUnclosed {
		return Verdict{Status: Unclosed, Holder: &holder, Events: events}
	}

	return Verdict{Status: Verified, Events: events}
}

// Fold checks an in-memory event sequence. Events without a Line are
// numbered by their position, starting at 1.
func Fold(events []Event, opts Options) (Verdict, error) {
	if err := opts.Identity.validate(); err != nil {
		return Verdict{}, err
	}

	monitor := NewMonitor(opts.Identity)
	for i, ev := range events {
		if ev.Line == 0 {
			ev.Line = i + 1
		}

		next, reason := monitor.Step(ev)
		if reason != "" {
			return violation(monitor, ev, reason, i), nil
		}
		monitor = next
	}

	return final(monitor, len(events), opts.AllowUnclosed), nil
}

// Verify scans a merged trace and stops at the first violation.
//
// The merged trace must order Enter and Leave events as they happened across
// all nodes. Concatenating per-node logs does not satisfy this, and the
// verdict on such a stream is meaningless.
func Verify(r io.Reader, opts Options) (Verdict, error) {
	if err := opts.Identity.validate(); err != nil {
		return Verdict{}, err
	}

	decoder, err := NewDecoder(opts)
	if err != nil {
		return Verdict{}, err
	}

	monitor := NewMonitor(opts.Identity)
	events := 0

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		ev, ok, err := decoder.Decode(line)
		if err != nil {
			return Verdict{}, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if !ok {
			if opts.Strict && strings.TrimSpace(line) != "" {
				return Verdict{}, fmt.Errorf("line %d: %w: %q is not an event", lineNum, ErrMalformedEvent, line)
			}
			continue
		}
		ev.Line = lineNum

		next, reason := monitor.Step(ev)
		if reason != "" {
			return violation(monitor, ev, reason, events), nil
		}
		monitor = next
		events++
	}

	if err := scanner.Err(); err != nil {
		return Verdict{}, fmt.Errorf("%w: %w", ErrTraceSource, err)
	}

	return final(monitor, events, opts.AllowUnclosed), nil
}

// VerifyFile verifies the trace at path. A path of "-" reads stdin.
func VerifyFile(path string, opts Options) (Verdict, error) {
	if path == "-" {
		return Verify(os.Stdin, opts)
	}

	file, err := os.Open(path)
	if err != nil {
		return Verdict{}, fmt.Errorf("%w: failed to open trace: %w", ErrTraceSource, err)
	}
	defer file.Close()

	return Verify(file, opts)
}
