package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wholesale",
		Short:         "Bulk CSV import and update of catalog records",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().String("user", os.Getenv("USER"), "Submitting user recorded on jobs and revisions")

	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newTemplateCmd())
	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newShowCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newSchemaCmd())
	cmd.AddCommand(newRelayCmd())
	return cmd
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}
