package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"threadrelay/internal/ipc"
)

func newThreadCommands(ctx *commandContext) []*cobra.Command {
	openCmd := &cobra.Command{
		Use:   "open <thread-url|thread-id>",
		Short: "Open a thread, replacing the current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.OpenThread(args[0])
				if err != nil {
					return err
				}
				printSession(cmd.OutOrStdout(), resp.Session)
				return nil
			})
		},
	}

	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Close the open thread session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.CloseThread(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Thread session closed")
				return nil
			})
		},
	}

	var stateJSON bool
	stateCmd := &cobra.Command{
		Use:   "state",
		Short: "Show the open session's capability state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.State()
				if err != nil {
					return err
				}
				if stateJSON {
					return writeJSON(cmd, resp.Session)
				}
				printSession(cmd.OutOrStdout(), resp.Session)
				return nil
			})
		},
	}
	stateCmd.Flags().BoolVar(&stateJSON, "json", false, "Print the session as JSON")

	return []*cobra.Command{openCmd, closeCmd, stateCmd}
}

func printSession(out io.Writer, session ipc.SessionInfo) {
	title := strings.TrimSpace(session.Title)
	if title == "" {
		title = "(title unknown)"
	}
	fmt.Fprintf(out, "Thread %s: %s\n", session.ThreadID, title)
	fmt.Fprintf(out, "URL: %s\n", session.URL)
	fmt.Fprint(out, renderState(session.State))
}
