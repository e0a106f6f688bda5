package trace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	// ErrMalformedEvent is returned for a line that looks like an event but
	// cannot be decoded, or for any non-event line in strict mode.
	ErrMalformedEvent = errors.New("malformed trace event")
	// ErrTraceSource is returned when the trace cannot be opened or read.
	ErrTraceSource = errors.New("trace source error")
	// ErrViolation is wrapped by Verdict.Err when mutual exclusion was broken
	// or a critical section was left open.
	ErrViolation = errors.New("mutual exclusion violated")
)

// Kind is the critical-section boundary an event marks.
type Kind int

const (
	Enter Kind = iota + 1
	Leave
)

func (k Kind) String() string {
	switch k {
	case Enter:
		return "E"
	case Leave:
		return "L"
	default:
		return "?"
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is one Enter or Leave crossing. Line is its 1-based position in the
// merged stream.
type Event struct {
	Kind Kind   `json:"kind"`
	Node string `json:"node"`
	Line int    `json:"line"`
}

// Format names a trace line syntax.
type Format string

const (
	// FormatShort is "E <node>" / "L <node>".
	FormatShort Format = "short"
	// FormatMaekawa is "Enter CS <node>" / "Exit CS <node>", as appended to
	// Maekawa.txt by the node binary.
	FormatMaekawa Format = "maekawa"
	// FormatJSONL is one JSON object per line.
	FormatJSONL Format = "jsonl"
)

// Decoder turns one raw line into an event. ok is false for lines that are not
// events at all.
type Decoder interface {
	Decode(line string) (ev Event, ok bool, err error)
}

// NewDecoder returns the decoder for opts.Format.
func NewDecoder(opts Options) (Decoder, error) {
	switch opts.Format {
	case "", FormatShort:
		return shortDecoder{}, nil
	case FormatMaekawa:
		return maekawaDecoder{}, nil
	case FormatJSONL:
		kindPath, nodePath := opts.KindPath, opts.NodePath
		if kindPath == "" {
			kindPath = "kind"
		}
		if nodePath == "" {
			nodePath = "node"
		}
		return jsonDecoder{kindPath: kindPath, nodePath: nodePath}, nil
	default:
		return nil, fmt.Errorf("unknown trace format %q", opts.Format)
	}
}

type shortDecoder struct{}

func (shortDecoder) Decode(line string) (Event, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Event{}, false, nil
	}

	var kind Kind
	switch fields[0] {
	case "E":
		kind = Enter
	case "L":
		kind = Leave
	default:
		return Event{}, false, nil
	}

	if len(fields) < 2 {
		return Event{}, false, fmt.Errorf("%w: %q has no node", ErrMalformedEvent, line)
	}

	return Event{Kind: kind, Node: fields[1]}, true, nil
}

type maekawaDecoder struct{}

func (maekawaDecoder) Decode(line string) (Event, bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Event{}, false, nil
	}

	var kind Kind
	switch fields[0] {
	case "Enter":
		kind = Enter
	case "Exit":
		kind = Leave
	default:
		return Event{}, false, nil
	}

	if len(fields) < 3 || fields[1] != "CS" {
		return Event{}, false, fmt.Errorf("%w: %q, expected %q", ErrMalformedEvent, line, fields[0]+" CS <node>")
	}

	return Event{Kind: kind, Node: fields[2]}, true, nil
}

type jsonDecoder struct {
	kindPath string
	nodePath string
}

func (d jsonDecoder) Decode(line string) (Event, bool, error) {
	if !gjson.Valid(line) {
		return Event{}, false, nil
	}

	var kind Kind
	switch strings.ToLower(gjson.Get(line, d.kindPath).String()) {
	case "e", "enter":
		kind = Enter
	case "l", "leave", "exit":
		kind = Leave
	default:
		return Event{}, false, nil
	}

	node := gjson.Get(line, d.nodePath)
	if !node.Exists() || node.String() == "" {
		return Event{}, false, fmt.Errorf("%w: %q has no %q field", ErrMalformedEvent, line, d.nodePath)
	}

	return Event{Kind: kind, Node: node.String()}, true, nil
}
