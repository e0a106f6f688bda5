package topology

import (
	"errors"
	"strconv"
)

// ErrMalformedTopology is wrapped by every error Parse returns for input that
// does not describe a complete, consistent cluster.
var ErrMalformedTopology = errors.New("malformed topology")

// Cluster is the validated, in-memory form of a topology description.
type Cluster struct {
	// N is the number of participating nodes.
	N int
	// Delay, Contention and Iterations are forwarded verbatim to every node.
	Delay      int
	Contention int
	Iterations int

	// Nodes and Quorums are in declaration order. Entry i of each describes
	// node i; Parse rejects input where that does not hold.
	Nodes   []Node
	Quorums []Quorum
}

// Node is one node-descriptor line.
type Node struct {
	Index int
	// Tokens is the whole line, the index token first.
	Tokens []string
	Line   int
}

// Host returns the address the node runs on.
func (n Node) Host() string {
	return n.Tokens[1]
}

// Descriptor returns the tokens every peer receives for this node: the line
// without its leading index token.
func (n Node) Descriptor() []string {
	return n.Tokens[1:]
}

// Quorum is one quorum-descriptor line with grouping punctuation removed.
type Quorum struct {
	Owner int
	// Tokens is the stripped line, the owner token first.
	Tokens  []string
	Members []int
	Line    int
}

// Size returns the number of members, not counting the owner token.
func (q Quorum) Size() int {
	return len(q.MemberTokens())
}

// MemberTokens returns the member tokens as they appeared in the source. A
// quorum built without Tokens renders its Members instead.
func (q Quorum) MemberTokens() []string {
	if len(q.Tokens) > 0 {
		return q.Tokens[1:]
	}

	tokens := make([]string, 0, len(q.Members))
	for _, member := range q.Members {
		tokens = append(tokens, strconv.Itoa(member))
	}
	return tokens
}

// Node returns the node with the given index.
func (c *Cluster) Node(index int) (Node, bool) {
	if index < 0 || index >= len(c.Nodes) || c.Nodes[index].Index != index {
		return Node{}, false
	}

	return c.Nodes[index], true
}

// Quorum returns the quorum certificate owned by the given node.
func (c *Cluster) Quorum(index int) (Quorum, bool) {
	if index < 0 || index >= len(c.Quorums) || c.Quorums[index].Owner != index {
		return Quorum{}, false
	}

	return c.Quorums[index], true
}
