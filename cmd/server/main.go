package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"vodscribe/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "vodscribe",
		Short:         "Download, transcribe and summarize videos from tracked channels",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "config file (optional)")

	root.AddCommand(
		newServeCmd(opts),
		newRunCmd(opts),
		newPollCmd(opts),
		newSourcesCmd(opts),
	)
	return root
}
