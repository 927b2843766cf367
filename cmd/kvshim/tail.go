package main

import (
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mnorrsken/kvshim/internal/codec"
)

func newTailCmd() *cobra.Command {
	var (
		channels []string
		patterns []string
		decode   string
	)

	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print messages published to channels or patterns until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(channels) == 0 && len(patterns) == 0 {
				return fmt.Errorf("tail needs at least one --channel or --pattern")
			}
			dec, err := codec.Get(decode)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			s, err := openSession(ctx)
			if err != nil {
				return err
			}
			defer s.close()

			p := newPrinter(!color.NoColor)
			show := func(pattern, channel string, payload []byte) {
				decoded, err := dec.Decode(payload)
				if err != nil {
					log.Printf("%s: %v", channel, err)
					decoded = payload
				}
				p.message(os.Stdout, pattern, channel, decoded)
			}
			s.client.OnMessageBuffer(func(channel, message []byte) {
				show("", string(channel), message)
			})
			s.client.OnPMessageBuffer(func(pattern, channel, message []byte) {
				show(string(pattern), string(channel), message)
			})

			if len(channels) > 0 {
				if _, err := s.client.Subscribe(ctx, stringArgs(channels)...); err != nil {
					return fmt.Errorf("subscribe failed: %w", err)
				}
			}
			if len(patterns) > 0 {
				if _, err := s.client.PSubscribe(ctx, stringArgs(patterns)...); err != nil {
					return fmt.Errorf("psubscribe failed: %w", err)
				}
			}
			log.Printf("Listening on %d channels and %d patterns, press Ctrl-C to stop", len(channels), len(patterns))

			<-ctx.Done()
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&channels, "channel", nil, "Channel to subscribe to (repeatable)")
	cmd.Flags().StringArrayVar(&patterns, "pattern", nil, "Pattern to subscribe to (repeatable)")
	cmd.Flags().StringVar(&decode, "decode", "none", "Payload decoding: none, base64, gzip or snappy")
	return cmd
}
