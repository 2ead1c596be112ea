package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"threadrelay/internal/ipc"
)

func newRelayCommands(ctx *commandContext) []*cobra.Command {
	notifyCmd := newToggleCommand(ctx, "notify", "Toggle new-post notices", func(c *ipc.Client, on bool) (*ipc.StateResponse, error) {
		return c.SetNotification(on)
	})
	overlayCmd := newToggleCommand(ctx, "overlay", "Toggle the OneComme comment overlay", func(c *ipc.Client, on bool) (*ipc.StateResponse, error) {
		return c.SetOverlay(on)
	})
	archiveCmd := newToggleCommand(ctx, "archive", "Toggle image archiving", func(c *ipc.Client, on bool) (*ipc.StateResponse, error) {
		return c.SetArchive(on)
	})

	speakCmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Read free text through the speech relay",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Speak(strings.Join(args, " ")); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Sent to speech relay")
				return nil
			})
		},
	}

	commentCmd := &cobra.Command{
		Use:   "comment <text>",
		Short: "Post free text to the comment overlay",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SendOverlay(strings.Join(args, " ")); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Sent to overlay")
				return nil
			})
		},
	}

	downloadCmd := &cobra.Command{
		Use:   "download-all",
		Short: "Archive every attachment in the open thread",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.DownloadAllImages()
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				return nil
			})
		},
	}

	return []*cobra.Command{notifyCmd, newSpeechCommand(ctx), overlayCmd, archiveCmd, speakCmd, commentCmd, downloadCmd}
}

func newToggleCommand(ctx *commandContext, name, short string, call func(*ipc.Client, bool) (*ipc.StateResponse, error)) *cobra.Command {
	return &cobra.Command{
		Use:       name + " on|off",
		Short:     short,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseToggle(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := call(client, on)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderState(resp.Session.State))
				return nil
			})
		},
	}
}

func newSpeechCommand(ctx *commandContext) *cobra.Command {
	var from string
	var reply int

	speechCmd := &cobra.Command{
		Use:       "speech on|off",
		Short:     "Toggle the Bouyomi-chan speech relay",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseToggle(args[0])
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetSpeech(ipc.SetSpeechRequest{Enabled: on, StartPosition: from, StartReplyNumber: reply})
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderState(resp.Session.State))
				return nil
			})
		},
	}
	speechCmd.Flags().StringVar(&from, "from", "", "Start position: newest, beginning, or reply")
	speechCmd.Flags().IntVar(&reply, "reply", 0, "Start reply number when --from=reply")

	var optReply int
	optionsCmd := &cobra.Command{
		Use:   "from <newest|beginning|reply>",
		Short: "Change the start position while speech is off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetSpeechOptions(ipc.SpeechOptionsRequest{StartPosition: args[0], StartReplyNumber: optReply})
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderState(resp.Session.State))
				return nil
			})
		},
	}
	optionsCmd.Flags().IntVar(&optReply, "reply", 0, "Start reply number for the reply position")

	replyCmd := &cobra.Command{
		Use:   "reply <number>",
		Short: "Change the start reply number while speech is off",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("reply number must be an integer: %w", err)
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetStartReplyNumber(n)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderState(resp.Session.State))
				return nil
			})
		},
	}

	speechCmd.AddCommand(optionsCmd, replyCmd)
	return speechCmd
}

func parseToggle(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "1", "enable":
		return true, nil
	case "off", "false", "0", "disable":
		return false, nil
	default:
		return false, errors.New("expected on or off")
	}
}
