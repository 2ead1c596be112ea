package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"threadrelay/internal/ipc"
)

const eventsWait = 25 * time.Second

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var since uint64
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print signals published by the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				out := cmd.OutOrStdout()
				cursor := since
				for {
					req := ipc.EventsRequest{Since: cursor, Limit: limit}
					if follow {
						req.WaitMillis = int(eventsWait / time.Millisecond)
					}
					resp, err := client.Events(req)
					if err != nil {
						return err
					}
					for _, sig := range resp.Signals {
						if asJSON {
							if err := writeJSON(cmd, sig); err != nil {
								return err
							}
							continue
						}
						printSignal(out, sig)
					}
					cursor = resp.Next
					if !follow {
						return nil
					}
					if err := cmd.Context().Err(); err != nil {
						return err
					}
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep waiting for new signals")
	cmd.Flags().Uint64Var(&since, "since", 0, "Only show signals after this sequence number")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum signals per batch")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print each signal as JSON")
	return cmd
}

func printSignal(out io.Writer, sig ipc.Signal) {
	line := fmt.Sprintf("%6d %s %-22s", sig.Sequence, sig.Timestamp.Local().Format("15:04:05"), sig.Kind)
	if sig.ThreadID != "" {
		line += " thread=" + sig.ThreadID
	}
	if sig.Count > 0 {
		line += fmt.Sprintf(" count=%d", sig.Count)
	}
	if sig.Message != "" {
		line += " " + sig.Message
	}
	fmt.Fprintln(out, line)
}
