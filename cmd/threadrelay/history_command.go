package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"threadrelay/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var threadID string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List archived attachments, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.History(threadID, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, resp.Entries)
				}
				out := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(out, "No archive entries")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Thread", "Reply", "Status", "Size", "File", "When"},
					historyRows(resp.Entries),
					[]columnAlignment{alignLeft, alignRight, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&threadID, "thread", "", "Only show entries for this thread id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum entries to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func historyRows(entries []ipc.HistoryEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		size := ""
		if entry.SizeBytes > 0 {
			size = humanize.Bytes(uint64(entry.SizeBytes))
		}
		file := filepath.Base(entry.Path)
		if entry.Path == "" {
			file = entry.URL
		}
		status := entry.Status
		if entry.Error != "" {
			status = fmt.Sprintf("%s (%s)", entry.Status, entry.Error)
		}
		rows = append(rows, []string{
			entry.ThreadID,
			strconv.Itoa(entry.ReplyNumber),
			status,
			size,
			file,
			humanize.Time(entry.CreatedAt),
		})
	}
	return rows
}
