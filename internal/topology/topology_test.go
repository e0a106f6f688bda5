package topology

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeNodes = `# n d c iters
3 20 10 5

0 dc01.utdallas.edu 3332   # first node
1 dc02.utdallas.edu 5678
2 dc03.utdallas.edu 5231

0 (0, 1)
1 (1, 2)
2 (2, 0)   # wraps around
`

func mustParse(t *testing.T, input string) *Cluster {
	t.Helper()

	cluster, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	return cluster
}

// manyNodes builds an n-node topology in which quorum line 1 is replaced by
// quorum1 and every other node's quorum is just itself.
func manyNodes(n int, quorum1 string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d 0 0 1\n", n)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%d h%d %d\n", i, i, 9000+i)
	}
	for i := 0; i < n; i++ {
		if i == 1 {
			fmt.Fprintln(&b, quorum1)
			continue
		}
		fmt.Fprintf(&b, "%d (%d)\n", i, i)
	}
	return b.String()
}

func TestParse(t *testing.T) {
	cluster := mustParse(t, threeNodes)

	assert.Equal(t, 3, cluster.N)
	assert.Equal(t, 20, cluster.Delay)
	assert.Equal(t, 10, cluster.Contention)
	assert.Equal(t, 5, cluster.Iterations)

	require.Len(t, cluster.Nodes, 3)
	require.Len(t, cluster.Quorums, 3)

	assert.Equal(t, []string{"0", "dc01.utdallas.edu", "3332"}, cluster.Nodes[0].Tokens)
	assert.Equal(t, "dc02.utdallas.edu", cluster.Nodes[1].Host())
	assert.Equal(t, []string{"dc03.utdallas.edu", "5231"}, cluster.Nodes[2].Descriptor())

	assert.Equal(t, []string{"2", "2", "0"}, cluster.Quorums[2].Tokens)
	assert.Equal(t, []int{2, 0}, cluster.Quorums[2].Members)
	assert.Equal(t, 2, cluster.Quorums[2].Size())

	node, ok := cluster.Node(1)
	require.True(t, ok)
	assert.Equal(t, 5, node.Line)

	quorum, ok := cluster.Quorum(1)
	require.True(t, ok)
	assert.Equal(t, 1, quorum.Owner)

	_, ok = cluster.Node(3)
	assert.False(t, ok)
}

func TestParseLayout(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(*testing.T, *Cluster)
	}{
		{
			name:  "Header Spans Lines",
			input: "2\n5 # d\n6\n7\n0 a 1\n1 b 2\n0 1\n1 0\n",
			check: func(t *testing.T, c *Cluster) {
				assert.Equal(t, []int{2, 5, 6, 7}, []int{c.N, c.Delay, c.Contention, c.Iterations})
			},
		},
		{
			name:  "Comment Glued To Token",
			input: "1 0 0 1#header\n0 host 9000#port\n0 (0)\n",
			check: func(t *testing.T, c *Cluster) {
				assert.Equal(t, []string{"0", "host", "9000"}, c.Nodes[0].Tokens)
				assert.Equal(t, []int{0}, c.Quorums[0].Members)
			},
		},
		{
			name:  "Surplus Lines Ignored",
			input: "1 0 0 1\n0 host 9000\n0 (0)\nthis is not part of the topology\n1 2 3\n",
			check: func(t *testing.T, c *Cluster) {
				assert.Len(t, c.Nodes, 1)
				assert.Len(t, c.Quorums, 1)
			},
		},
		{
			name:  "Detached Punctuation",
			input: "2 0 0 1\n0 a 1\n1 b 2\n0 ( 0 , 1 )\n1 (1, 0)\n",
			check: func(t *testing.T, c *Cluster) {
				assert.Equal(t, []string{"0", "0", "1"}, c.Quorums[0].Tokens)
				assert.Equal(t, []int{1, 0}, c.Quorums[1].Members)
			},
		},
		{
			// Commas are removed, not split on, so "(1,0)" is member 10.
			name:  "Comma Without Space Joins Digits",
			input: manyNodes(11, "1 (1,0)"),
			check: func(t *testing.T, c *Cluster) {
				assert.Equal(t, []string{"1", "10"}, c.Quorums[1].Tokens)
				assert.Equal(t, []int{10}, c.Quorums[1].Members)
			},
		},
		{
			name:  "Owner Only Quorum",
			input: "1 0 0 1\n0 host 9000\n(0)\n",
			check: func(t *testing.T, c *Cluster) {
				assert.Equal(t, 0, c.Quorums[0].Size())
				assert.Empty(t, c.Quorums[0].Members)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, mustParse(t, tt.input))
		})
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		message string
	}{
		{
			name:    "Missing Node Line",
			input:   "3 20 10 5\n0 a 1\n1 b 2\n",
			message: "expected 3 node lines, found 2",
		},
		{
			name:    "Missing Quorum Line",
			input:   "2 20 10 5\n0 a 1\n1 b 2\n0 (0 1)\n",
			message: "expected 2 quorum lines, found 1",
		},
		{
			name:    "Empty Input",
			input:   "# nothing here\n\n",
			message: "missing n in header",
		},
		{
			name:    "Short Header",
			input:   "3 20 10\n",
			message: "missing iters in header",
		},
		{
			name:    "Non Integer Header",
			input:   "3 twenty 10 5\n",
			message: `expected integer d, got "twenty"`,
		},
		{
			name:    "Zero Nodes",
			input:   "0 20 10 5\n",
			message: "node count must be positive",
		},
		{
			name:    "Tokens After Header",
			input:   "1 20 10 5 0 a 1\n0 a 1\n0 (0)\n",
			message: "unexpected tokens after header",
		},
		{
			name:    "Node Without Host",
			input:   "1 20 10 5\n0\n0 (0)\n",
			message: "needs an index and a host",
		},
		{
			name:    "Node Index Not Numeric",
			input:   "1 20 10 5\nx a 1\n0 (0)\n",
			message: `invalid node index "x"`,
		},
		{
			name:    "Nodes Out Of Order",
			input:   "2 20 10 5\n1 b 2\n0 a 1\n0 (0 1)\n1 (1 0)\n",
			message: "node line 0 declares index 1",
		},
		{
			name:    "Quorums Out Of Order",
			input:   "2 20 10 5\n0 a 1\n1 b 2\n1 (1 0)\n0 (0 1)\n",
			message: "quorum line 0 belongs to node 1",
		},
		{
			name:    "Member Out Of Range",
			input:   "2 20 10 5\n0 a 1\n1 b 2\n0 (0 2)\n1 (1 0)\n",
			message: "quorum member 2 outside [0, 2)",
		},
		{
			name:    "Member Not Numeric",
			input:   "2 20 10 5\n0 a 1\n1 b 2\n0 (0 b)\n1 (1 0)\n",
			message: `invalid quorum member "b"`,
		},
		{
			name:    "Duplicate Member",
			input:   "2 20 10 5\n0 a 1\n1 b 2\n0 (0 1 1)\n1 (1 0)\n",
			message: "duplicate quorum member 1",
		},
		{
			name:    "Comma Without Space Joins Digits",
			input:   "2 20 10 5\n0 a 1\n1 b 2\n0 (0, 1)\n1 (1,0)\n",
			message: "line 5: quorum member 10 outside [0, 2)",
		},
		{
			name:    "Line Too Long",
			input:   "1 20 10 5\n0 host " + strings.Repeat("x", maxLineSize) + "\n0 (0)\n",
			message: "line 2: line longer than",
		},
		{
			name:    "Decoration Only Quorum",
			input:   "1 20 10 5\n0 a 1\n(,)\n",
			message: "empty quorum line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cluster, err := Parse(strings.NewReader(tt.input))

			require.ErrorIs(t, err, ErrMalformedTopology)
			assert.Contains(t, err.Error(), tt.message)
			assert.Nil(t, cluster)
		})
	}
}

func TestParseDeterministic(t *testing.T) {
	first := mustParse(t, threeNodes)
	second := mustParse(t, threeNodes)

	assert.Equal(t, first, second)
	assert.Equal(t, first.LaunchCommands("java", "Maekawa"), second.LaunchCommands("java", "Maekawa"))
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.txt")
	require.NoError(t, os.WriteFile(path, []byte(threeNodes), 0644))

	cluster, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cluster.N)

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedTopology)
}

func TestLaunchCommands(t *testing.T) {
	cluster := mustParse(t, threeNodes)
	commands := cluster.LaunchCommands("java", "Maekawa")

	require.Len(t, commands, 3)

	assert.Equal(t, LaunchCommand{
		Node: 0,
		Host: "dc01.utdallas.edu",
		Argv: []string{
			"java", "Maekawa",
			"3", "0", "20", "10", "5",
			"dc01.utdallas.edu", "3332",
			"dc02.utdallas.edu", "5678",
			"dc03.utdallas.edu", "5231",
			"2", "0", "1",
		},
	}, commands[0])

	assert.Equal(t, "dc03.utdallas.edu", commands[2].Host)
	assert.Equal(t, []string{"2", "2", "0"}, commands[2].Argv[len(commands[2].Argv)-3:])
}

func TestLaunchCommandsRoster(t *testing.T) {
	inputs := map[string]string{
		"Three Nodes": threeNodes,
		"Single Node": "1 1 1 1\n0 localhost 9000\n0 (0)\n",
		"Extra Descriptor Tokens": "2 1 1 1\n" +
			"0 h0 9000 rack-a\n1 h1 9001 rack-b\n" +
			"0 (0, 1)\n1 (1)\n",
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			cluster := mustParse(t, input)
			target := []string{"./node"}
			commands := cluster.LaunchCommands(target...)

			require.Len(t, commands, cluster.N)

			var roster []string
			for _, node := range cluster.Nodes {
				roster = append(roster, node.Descriptor()...)
			}

			for i, cmd := range commands {
				quorum := cluster.Quorums[i]
				assert.Equal(t, i, cmd.Node)

				// target, n, index, d, c, iters
				prefix := len(target) + 5
				require.Len(t, cmd.Argv, prefix+len(roster)+1+quorum.Size())

				assert.Equal(t, cluster.Nodes[i].Tokens[0], cmd.Argv[len(target)+1])
				assert.Equal(t, roster, cmd.Argv[prefix:prefix+len(roster)], "node %d roster", i)

				rest := cmd.Argv[prefix+len(roster):]
				assert.Equal(t, quorum.Size(), len(rest)-1)
				assert.Equal(t, quorum.MemberTokens(), rest[1:], "node %d quorum", i)
				assert.NotContains(t, rest[1:], "(")
			}
		})
	}
}

func TestLaunchCommandsLiteralCluster(t *testing.T) {
	cluster := &Cluster{
		N:          2,
		Delay:      1,
		Contention: 2,
		Iterations: 3,
		Nodes: []Node{
			{Index: 0, Tokens: []string{"0", "h0", "9000"}},
			{Index: 1, Tokens: []string{"1", "h1", "9001"}},
		},
		Quorums: []Quorum{
			{Owner: 0, Tokens: []string{"0", "0", "1"}, Members: []int{0, 1}},
			{Owner: 1, Members: []int{1}},
		},
	}

	commands := cluster.LaunchCommands("./node")
	require.Len(t, commands, 2)
	assert.Equal(t, []string{"./node", "2", "0", "1", "2", "3", "h0", "9000", "h1", "9001", "2", "0", "1"}, commands[0].Argv)
	assert.Equal(t, []string{"./node", "2", "1", "1", "2", "3", "h0", "9000", "h1", "9001", "1", "1"}, commands[1].Argv)

	quorum, ok := cluster.Quorum(1)
	require.True(t, ok)
	assert.Equal(t, 1, quorum.Size())

	_, ok = (&Cluster{Nodes: []Node{{Index: 1, Tokens: []string{"1", "h"}}}}).Node(0)
	assert.False(t, ok)
}

func TestLaunchCommandsDoNotShareArgv(t *testing.T) {
	cluster := mustParse(t, threeNodes)
	commands := cluster.LaunchCommands("java", "Maekawa")

	commands[0].Argv[7] = "mutated"
	assert.Equal(t, "dc01.utdallas.edu", commands[1].Argv[7])
	assert.Equal(t, "dc01.utdallas.edu", cluster.Nodes[0].Host())
}
