package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func newPollCmd(root *rootOptions) *cobra.Command {
	var maxPerSource int
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Check every source for new items and print them as JSON",
		Long: `Check every tracked source once and print the poll result as JSON.

A source seen for the first time only records its newest item. The
last-seen state is shared with the server's /api/monitor/poll route.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(root.configPath)
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.poller.Poll(cmd.Context(), maxPerSource)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	cmd.Flags().IntVar(&maxPerSource, "max", 1, "new items reported per source (clamped to 1-5)")
	return cmd
}
