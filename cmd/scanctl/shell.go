package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/nasa-jpl/goscan/option"
	"github.com/nasa-jpl/goscan/scan"
)

// shell is an interactive console over one session
type shell struct {
	s  *scan.Session
	c  Config
	rl *readline.Instance
}

func newShell(s *scan.Session, c Config) (*shell, error) {
	names := func(string) []string {
		var out []string
		for _, o := range s.Registry().Options() {
			if o.State() != option.StateHidden {
				out = append(out, o.Name())
			}
		}
		return out
	}
	completer := readline.NewPrefixCompleter(
		readline.PcItem("list", readline.PcItem("-a")),
		readline.PcItem("get", readline.PcItemDynamic(names)),
		readline.PcItem("set", readline.PcItemDynamic(names)),
		readline.PcItem("preview"),
		readline.PcItem("scan"),
		readline.PcItem("invert"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "scan> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete:    completer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &shell{s: s, c: c, rl: rl}, nil
}

func (sh *shell) printHelp(w io.Writer) {
	fmt.Fprintln(w, `
Commands:
  list [-a]            - list options, -a includes hidden ones
  get <option>...      - print option values
  set <option> [value] - write an option; buttons take no value
  preview [file]       - run a preview and save it (png, tiff or fits by extension)
  scan                 - run a scan, saving pages under the configured folder
  invert [on|off]      - show or change color inversion
  quit                 - leave`)
}

// Run reads commands until EOF, quit or ctx is done
func (sh *shell) Run(ctx context.Context) {
	defer sh.rl.Close()
	out := sh.rl.Stdout()
	sh.printHelp(out)
	sh.s.Registry().Subscribe(func(ev option.Event) {
		if ev.Kind == option.ValueChanged && ev.Option.NeedsPolling() {
			fmt.Fprintf(out, "%s changed: %s\n", ev.Option.Name(), ev.Option.String())
		}
	})
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		line, err := sh.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(out, "Exiting...")
			return
		}
		parts := strings.Fields(strings.TrimSpace(line))
		if len(parts) == 0 {
			continue
		}
		cmd, args := strings.ToLower(parts[0]), parts[1:]
		switch cmd {
		case "quit", "exit", "q":
			fmt.Fprintln(out, "Exiting...")
			return
		case "help", "?":
			sh.printHelp(out)
		default:
			if err := dispatch(ctx, out, sh.s, sh.c, cmd, args); err != nil {
				fmt.Fprintln(out, "error:", err)
			}
		}
	}
}

// pollInterval is how often the shell rereads device-sensed options
const pollInterval = 500 * time.Millisecond
