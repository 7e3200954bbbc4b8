package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var panelsCmd = &cobra.Command{
	Use:   "panels",
	Short: "Manage the remote panel registry",
}

var panelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registry panels",
	RunE: func(cmd *cobra.Command, args []string) error {
		rows, err := newRegistryClient().List(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME")
		for _, row := range rows {
			fmt.Fprintf(w, "%d\t%s\n", row.ID, row.Name)
		}
		return w.Flush()
	},
}

var panelsAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a new panel name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		panel, err := newRegistryClient().Create(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("created panel %d (%s)\n", panel.ID, panel.Name)
		return nil
	},
}

var panelsUpdateCmd = &cobra.Command{
	Use:   "update <id> <name>",
	Short: "Rename a registry panel",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return eris.Wrapf(err, "invalid panel id %q", args[0])
		}
		if err := newRegistryClient().Update(cmd.Context(), id, args[1]); err != nil {
			return err
		}
		fmt.Printf("updated panel %d\n", id)
		return nil
	},
}

var panelsRemoveCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a registry panel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			return eris.Wrapf(err, "invalid panel id %q", args[0])
		}
		if err := newRegistryClient().Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Printf("deleted panel %d\n", id)
		return nil
	},
}

func init() {
	panelsCmd.AddCommand(panelsListCmd, panelsAddCmd, panelsUpdateCmd, panelsRemoveCmd)
	rootCmd.AddCommand(panelsCmd)
}
