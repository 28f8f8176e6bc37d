package cli

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mitchellh/go-wordwrap"
	"github.com/simonlingoogle/go-simplelogger"
	"golang.org/x/term"
)

type Help struct {
	termWidth   uint
	maxCmdWidth uint
	commands    []string
}

var commandHelp = map[string]string{
	"help":    "Show help for a specific command.",
	"load":    "Load a topology XML file and a scenario YAML file.",
	"go":      "Advance the simulation clock by a number of ticks.",
	"node":    "Show one node's current state.",
	"send":    "Inject a message from one node to another.",
	"watch":   "Enable detailed log output for selected node(s).",
	"unwatch": "Disable the detailed log output set by 'watch'.",
	"exit":    "Exit the simulator.",
}

// newHelp creates a new Help object. It is used to display CLI commands
// help to the user.
func newHelp() Help {
	h := Help{}
	h.termWidth = 80
	h.maxCmdWidth = 10
	h.commands = make([]string, 0, len(commandHelp))
	for k := range commandHelp {
		h.commands = append(h.commands, k)
	}
	sort.Strings(h.commands)
	h.update()
	return h
}

// update refreshes the Help object to account for the user's current
// terminal size.
func (help *Help) update() {
	fdTerm := int(os.Stdout.Fd())
	if term.IsTerminal(fdTerm) {
		width, _, err := term.GetSize(fdTerm)
		simplelogger.PanicIfError(err, "Could not get terminal size.")
		help.termWidth = uint(width)
	}
}

// outputGeneralHelp outputs help for all commands.
func (help *Help) outputGeneralHelp() string {
	return help.outputHelp(help.commands)
}

// outputCommandHelp outputs help for one specific command.
func (help *Help) outputCommandHelp(command string) string {
	return help.outputHelp([]string{command})
}

// outputHelp outputs help for one or more specific commands, in the
// given order.
func (help *Help) outputHelp(commands []string) string {
	help.update()
	s := ""
	for _, cmd := range commands {
		explanation, ok := commandHelp[cmd]
		if !ok {
			explanation = "(Non-existent command.)"
		}
		w := help.termWidth - help.maxCmdWidth - 1
		explWrapped := strings.Split(wordwrap.WrapString(explanation, w), "\n")
		for idx, line := range explWrapped {
			if idx == 0 {
				s += fmt.Sprintf("%-10s %s\n", cmd, line)
				continue
			}
			s += fmt.Sprintf("%-10s %s\n", "", line)
		}
	}
	return s
}
