package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"threadrelay/internal/ipc"
)

func newSettingsCommand(ctx *commandContext) *cobra.Command {
	var port int
	var serviceID string
	var stream string

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Change relay settings on the running daemon and save them",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			var req ipc.UpdateSettingsRequest
			if flags.Changed("speech-port") {
				req.SpeechPort = &port
			}
			if flags.Changed("overlay-service-id") {
				value := strings.TrimSpace(serviceID)
				req.OverlayServiceID = &value
			}
			if flags.Changed("stream") {
				on, err := parseToggle(stream)
				if err != nil {
					return fmt.Errorf("--stream: %w", err)
				}
				req.StreamEnabled = &on
			}
			if req.SpeechPort == nil && req.OverlayServiceID == nil && req.StreamEnabled == nil {
				return cmd.Help()
			}
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.UpdateSettings(req); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Settings updated")
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&port, "speech-port", 0, "Bouyomi-chan HTTP port (0-65535)")
	cmd.Flags().StringVar(&serviceID, "overlay-service-id", "", "OneComme service id")
	cmd.Flags().StringVar(&stream, "stream", "", "Stream support on|off")
	return cmd
}
