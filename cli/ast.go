// This file defines the format of all CLI commands and their flags.

package cli

import (
	"strconv"

	"github.com/alecthomas/participle"
)

type command struct {
	Load    *LoadCmd    `  @@` //nolint
	Go      *GoCmd      `| @@` //nolint
	Node    *NodeCmd    `| @@` //nolint
	Send    *SendCmd    `| @@` //nolint
	Watch   *WatchCmd   `| @@` //nolint
	Unwatch *UnwatchCmd `| @@` //nolint
	Exit    *ExitCmd    `| @@` //nolint
	Help    *HelpCmd    `| @@` //nolint
}

// NodeSelector defines the node selector format.
type NodeSelector struct {
	Id int `@Int` //nolint
}

func (ns *NodeSelector) String() string {
	return strconv.Itoa(ns.Id)
}

// LoadCmd defines the `load` command format: a topology XML file and a
// scenario YAML file.
type LoadCmd struct {
	Cmd      struct{} `"load"`  //nolint
	Topology string   `@String` //nolint
	Scenario string   `@String` //nolint
}

// GoCmd defines the `go` command format: advance the clock by a number
// of ticks.
type GoCmd struct {
	Cmd   struct{} `"go"` //nolint
	Ticks int      `@Int` //nolint
}

// NodeCmd defines the `node` command format: inspect one node's state.
type NodeCmd struct {
	Cmd  struct{}     `"node"` //nolint
	Node NodeSelector `@@`     //nolint
}

// SendCmd defines the `send` command format: inject a message from one
// node to another for interactive testing.
type SendCmd struct {
	Cmd  struct{}     `"send"`  //nolint
	Src  NodeSelector `@@`      //nolint
	Dst  NodeSelector `@@`      //nolint
	Data string       `@String` //nolint
}

// WatchCmd defines the `watch` command format: enable detailed per-node
// log output.
type WatchCmd struct {
	Cmd   struct{}       `"watch"` //nolint
	Nodes []NodeSelector `( @@ )+` //nolint
}

// UnwatchCmd defines the `unwatch` command format: disable the detailed
// log output `watch` enabled.
type UnwatchCmd struct {
	Cmd   struct{}       `"unwatch"` //nolint
	Nodes []NodeSelector `( @@ )+`   //nolint
}

// ExitCmd defines the `exit` command format.
type ExitCmd struct {
	Cmd struct{} `"exit"` //nolint
}

// HelpCmd defines the `help` command format.
type HelpCmd struct {
	Cmd     struct{} `"help"`      //nolint
	Command *string  `[ @String ]` //nolint
}

var (
	commandParser = participle.MustBuild(&command{})
)

func parseCmdBytes(b []byte, cmd *command) error {
	err := commandParser.ParseBytes(b, cmd)
	return err
}
