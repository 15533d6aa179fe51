// Package console is a stdin command REPL that drives a netcore.Server
// facade. It owns no core logic: it only registers named commands and
// dispatches typed input to them, grounded on the line-scanning,
// colored-prompt style of a classic stdin console.
package console

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
)

// Prompt is the colored prefix printed before reading each line.
var Prompt = color.New(color.FgHiCyan, color.Bold)

// CommandFunc handles one invocation of a registered command, returning
// the text to print as its result.
type CommandFunc func(args []string) string

type command struct {
	usage string
	fn    CommandFunc
}

// Console is a line-oriented command REPL.
type Console struct {
	in       io.Reader
	out      io.Writer
	commands map[string]command
}

// New builds a Console reading lines from in and writing output to out.
func New(in io.Reader, out io.Writer) *Console {
	return &Console{in: in, out: out, commands: make(map[string]command)}
}

// Register adds a named command. Re-registering a name replaces it.
func (c *Console) Register(name, usage string, fn CommandFunc) {
	c.commands[name] = command{usage: usage, fn: fn}
}

// Run reads lines until EOF or a "quit" or "exit" command, dispatching each to its
// registered command. Unknown commands print a usage summary.
func (c *Console) Run() {
	scanner := bufio.NewScanner(c.in)
	for {
		Prompt.Fprint(c.out, "pulsenet> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		name, args := fields[0], fields[1:]
		if name == "quit" || name == "exit" {
			return
		}
		cmd, ok := c.commands[name]
		if !ok {
			fmt.Fprintln(c.out, c.usage())
			continue
		}
		fmt.Fprintln(c.out, cmd.fn(args))
	}
}

func (c *Console) usage() string {
	names := make([]string, 0, len(c.commands))
	for n := range c.commands {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	b.WriteString("unknown command; available commands:\n")
	for _, n := range names {
		fmt.Fprintf(&b, "  %-10s %s\n", n, c.commands[n].usage)
	}
	return strings.TrimRight(b.String(), "\n")
}
