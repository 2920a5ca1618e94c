package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vodscribe/internal/models"
)

func newSourcesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage tracked sources",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List tracked sources",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := loadApp(root.configPath)
				if err != nil {
					return err
				}
				defer a.close()
				return printSources(a.sources.List())
			},
		},
		&cobra.Command{
			Use:   "add <channel-id|playlist-id|url|@handle>",
			Short: "Resolve and track a source",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := loadApp(root.configPath)
				if err != nil {
					return err
				}
				defer a.close()

				info, err := a.catalog.SourceInfo(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("resolve %s: %w", args[0], err)
				}
				added, err := a.sources.Add(models.Source{ID: info.ID, Name: info.DisplayName})
				if err != nil {
					return err
				}
				verb := "updated"
				if added {
					verb = "added"
				}
				fmt.Printf("%s %s (%s)\n", verb, info.ID, info.DisplayName)
				return nil
			},
		},
		&cobra.Command{
			Use:   "remove <id>",
			Short: "Stop tracking a source",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				a, err := loadApp(root.configPath)
				if err != nil {
					return err
				}
				defer a.close()

				removed, err := a.sources.Remove(args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("source %s is not tracked", args[0])
				}
				if _, err := a.monitorState.Update(func(st *models.MonitorState) error {
					delete(st.LastSeen, args[0])
					return nil
				}); err != nil {
					return err
				}
				fmt.Printf("removed %s\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func printSources(sources []models.Source) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME")
	for _, s := range sources {
		fmt.Fprintf(w, "%s\t%s\n", s.ID, s.Name)
	}
	return w.Flush()
}
