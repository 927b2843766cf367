package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mnorrsken/kvshim/compat"
)

func newReplCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Start an interactive prompt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRepl()
		},
	}
}

// replCompleter completes the command word from the supported commands.
type replCompleter struct {
	names []string
}

// Do implements readline.AutoCompleter.
func (c *replCompleter) Do(line []rune, pos int) (newLine [][]rune, length int) {
	text := string(line[:pos])
	// Only complete the first word
	if strings.ContainsAny(text, " \t") {
		return nil, 0
	}
	lower := strings.ToLower(text)
	for _, name := range c.names {
		if strings.HasPrefix(name, lower) {
			newLine = append(newLine, []rune(strings.ToUpper(name[len(lower):])+" "))
		}
	}
	return newLine, len(text)
}

func runRepl() error {
	ctx, cancel := signalContext()
	defer cancel()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	homeDir, _ := os.UserHomeDir()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "kvshim> ",
		HistoryFile:     filepath.Join(homeDir, ".kvshim_history"),
		AutoComplete:    &replCompleter{names: compat.CommandNames()},
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer rl.Close()

	// Messages for SUBSCRIBE/PSUBSCRIBE issued at the prompt
	p := newPrinter(!color.NoColor)
	s.client.OnMessageBuffer(func(channel, message []byte) {
		p.message(rl.Stdout(), "", string(channel), message)
	})
	s.client.OnPMessageBuffer(func(pattern, channel, message []byte) {
		p.message(rl.Stdout(), string(pattern), string(channel), message)
	})

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if len(line) == 0 {
				return nil
			}
			continue
		} else if errors.Is(err, io.EOF) {
			return nil
		}

		tokens, err := tokenize(line)
		if err != nil {
			color.Red("Parse error: %v", err)
			continue
		}
		if len(tokens) == 0 {
			continue
		}
		switch strings.ToLower(tokens[0]) {
		case "exit":
			return nil
		case "help":
			fmt.Fprintln(rl.Stdout(), strings.Join(compat.CommandNames(), " "))
			continue
		}

		value, err := s.client.Call(ctx, tokens[0], stringArgs(tokens[1:])...)
		if err != nil {
			p.printError(rl.Stdout(), err)
		} else {
			p.print(rl.Stdout(), value)
		}
		if strings.EqualFold(tokens[0], "quit") {
			return nil
		}
	}
}
