package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage stored URL→letter campaign mappings",
}

var mappingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored mappings",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		all, err := st.ListLetters(ctx)
		if err != nil {
			return err
		}
		urls := make([]string, 0, len(all))
		for url := range all {
			urls = append(urls, url)
		}
		sort.Strings(urls)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "URL\tLETTER")
		for _, url := range urls {
			fmt.Fprintf(w, "%s\t%s\n", url, all[url])
		}
		return w.Flush()
	},
}

var mappingsSetCmd = &cobra.Command{
	Use:   "set <url> <letter>",
	Short: "Set or overwrite a mapping",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := st.SetLetter(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("mapped %s -> %s\n", args[0], args[1])
		return nil
	},
}

var mappingsRemoveCmd = &cobra.Command{
	Use:   "rm <url>",
	Short: "Delete a mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		if err := st.DeleteLetter(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted mapping for %s\n", args[0])
		return nil
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the code→panel audit map",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		all, err := st.ListAudit(ctx)
		if err != nil {
			return err
		}
		codes := make([]string, 0, len(all))
		for code := range all {
			codes = append(codes, code)
		}
		sort.Strings(codes)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CODE\tPANEL")
		for _, code := range codes {
			fmt.Fprintf(w, "%s\t%s\n", code, all[code])
		}
		return w.Flush()
	},
}

func init() {
	mappingsCmd.AddCommand(mappingsListCmd, mappingsSetCmd, mappingsRemoveCmd)
	rootCmd.AddCommand(mappingsCmd, auditCmd)
}
