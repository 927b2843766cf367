package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCallCmd() *cobra.Command {
	var raw bool

	cmd := &cobra.Command{
		Use:   "call <command> [args...]",
		Short: "Execute a single command and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			p := newPrinter(!raw && !color.NoColor)
			value, err := s.client.Call(ctx, args[0], stringArgs(args[1:])...)
			if err != nil {
				p.printError(os.Stdout, err)
				return errCommandFailed
			}
			p.print(os.Stdout, value)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Never color the output")
	return cmd
}

// stringArgs passes command line tokens through the legacy variadic
// surface unchanged.
func stringArgs(tokens []string) []any {
	out := make([]any, len(tokens))
	for i, t := range tokens {
		out[i] = t
	}
	return out
}
