package topology

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

const maxLineSize = 1024 * 1024

var (
	headerFields = [4]string{"n", "d", "c", "iters"}
	grouping     = strings.NewReplacer("(", "", ")", "", ",", "")
)

// sourceLine is a non-empty, comment-stripped line and where it came from.
type sourceLine struct {
	num    int
	tokens []string
}

func malformed(line int, format string, args ...any) error {
	return fmt.Errorf("%w: line %d: %s", ErrMalformedTopology, line, fmt.Sprintf(format, args...))
}

// tokenize drops everything after the first '#' and splits on whitespace.
func tokenize(line string) []string {
	line, _, _ = strings.Cut(line, "#")
	return strings.Fields(line)
}

// stripGrouping removes the "(", ")" and "," decoration from quorum tokens.
// Tokens that were nothing but decoration are dropped.
func stripGrouping(tokens []string) []string {
	stripped := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		tok = grouping.Replace(tok)
		if tok != "" {
			stripped = append(stripped, tok)
		}
	}

	return stripped
}

// ParseFile reads and parses the topology description at path.
func ParseFile(path string) (*Cluster, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open topology: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse reads a topology description: the integers n, d, c and iters, then n
// node lines, then n quorum lines. Lines beyond the last quorum are ignored.
func Parse(r io.Reader) (*Cluster, error) {
	var (
		header      []int
		nodeLines   []sourceLine
		quorumLines []sourceLine
		lineNum     int
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		lineNum++
		tokens := tokenize(scanner.Text())
		if len(tokens) == 0 {
			continue
		}

		if len(header) < len(headerFields) {
			for i, tok := range tokens {
				value, err := strconv.Atoi(tok)
				if err != nil {
					return nil, malformed(lineNum, "expected integer %s, got %q", headerFields[len(header)], tok)
				}
				header = append(header, value)

				if len(header) == len(headerFields) {
					if rest := tokens[i+1:]; len(rest) > 0 {
						return nil, malformed(lineNum, "unexpected tokens after header: %q", rest)
					}
					if header[0] < 1 {
						return nil, malformed(lineNum, "node count must be positive, got %d", header[0])
					}
					break
				}
			}
			continue
		}

		n := header[0]
		if len(nodeLines) < n {
			nodeLines = append(nodeLines, sourceLine{num: lineNum, tokens: tokens})
			continue
		}

		quorumLines = append(quorumLines, sourceLine{num: lineNum, tokens: stripGrouping(tokens)})
		if len(quorumLines) == n {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, malformed(lineNum+1, "line longer than %d bytes", maxLineSize)
		}
		return nil, fmt.Errorf("failed to read topology: %w", err)
	}

	// Validation
	if len(header) < len(headerFields) {
		return nil, malformed(lineNum, "missing %s in header", headerFields[len(header)])
	}

	n := header[0]
	if len(nodeLines) < n {
		return nil, malformed(lineNum, "expected %d node lines, found %d", n, len(nodeLines))
	}
	if len(quorumLines) < n {
		return nil, malformed(lineNum, "expected %d quorum lines, found %d", n, len(quorumLines))
	}

	cluster := &Cluster{
		N:          n,
		Delay:      header[1],
		Contention: header[2],
		Iterations: header[3],
		Nodes:      make([]Node, 0, n),
		Quorums:    make([]Quorum, 0, n),
	}

	for pos, line := range nodeLines {
		node, err := parseNode(line, pos)
		if err != nil {
			return nil, err
		}
		cluster.Nodes = append(cluster.Nodes, node)
	}

	for pos, line := range quorumLines {
		quorum, err := parseQuorum(line, pos, n)
		if err != nil {
			return nil, err
		}
		cluster.Quorums = append(cluster.Quorums, quorum)
	}

	return cluster, nil
}

func parseNode(line sourceLine, pos int) (Node, error) {
	if len(line.tokens) < 2 {
		return Node{}, malformed(line.num, "node line needs an index and a host, got %q", line.tokens)
	}

	index, err := strconv.Atoi(line.tokens[0])
	if err != nil {
		return Node{}, malformed(line.num, "invalid node index %q", line.tokens[0])
	}
	if index != pos {
		return Node{}, malformed(line.num, "node line %d declares index %d", pos, index)
	}

	return Node{Index: index, Tokens: line.tokens, Line: line.num}, nil
}

func parseQuorum(line sourceLine, pos, n int) (Quorum, error) {
	if len(line.tokens) == 0 {
		return Quorum{}, malformed(line.num, "empty quorum line")
	}

	owner, err := strconv.Atoi(line.tokens[0])
	if err != nil {
		return Quorum{}, malformed(line.num, "invalid quorum owner %q", line.tokens[0])
	}
	if owner != pos {
		return Quorum{}, malformed(line.num, "quorum line %d belongs to node %d", pos, owner)
	}

	members := make([]int, 0, len(line.tokens)-1)
	for _, tok := range line.tokens[1:] {
		member, err := strconv.Atoi(tok)
		if err != nil {
			return Quorum{}, malformed(line.num, "invalid quorum member %q", tok)
		}
		if member < 0 || member >= n {
			return Quorum{}, malformed(line.num, "quorum member %d outside [0, %d)", member, n)
		}
		if slices.Contains(members, member) {
			return Quorum{}, malformed(line.num, "duplicate quorum member %d", member)
		}
		members = append(members, member)
	}

	return Quorum{Owner: owner, Tokens: line.tokens, Members: members, Line: line.num}, nil
}
