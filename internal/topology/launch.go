package topology

import "strconv"

// LaunchCommand is the invocation of one node: where it runs and the exact
// argument vector it receives.
type LaunchCommand struct {
	Node int      `json:"node"`
	Host string   `json:"host"`
	Argv []string `json:"argv"`
}

// LaunchCommands builds one command per node, in declaration order. target is
// the invocation prefix, e.g. ["java", "Maekawa"].
//
// The argument layout after target is:
//
//	n own-index d c iters <descriptor of node 0> ... <descriptor of node n-1> q-size <q members>
//
// Every node receives the same full roster; only the index and quorum differ.
func (c *Cluster) LaunchCommands(target ...string) []LaunchCommand {
	var roster []string
	for _, node := range c.Nodes {
		roster = append(roster, node.Descriptor()...)
	}

	params := []string{
		strconv.Itoa(c.Delay),
		strconv.Itoa(c.Contention),
		strconv.Itoa(c.Iterations),
	}

	commands := make([]LaunchCommand, 0, len(c.Nodes))
	for _, node := range c.Nodes {
		quorum, _ := c.Quorum(node.Index)

		argv := make([]string, 0, len(target)+len(params)+len(roster)+quorum.Size()+3)
		argv = append(argv, target...)
		argv = append(argv, strconv.Itoa(c.N), node.Tokens[0])
		argv = append(argv, params...)
		argv = append(argv, roster...)
		argv = append(argv, strconv.Itoa(quorum.Size()))
		argv = append(argv, quorum.MemberTokens()...)

		commands = append(commands, LaunchCommand{
			Node: node.Index,
			Host: node.Host(),
			Argv: argv,
		})
	}

	return commands
}
