package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iota-uz/wholesale/modules/wholesale"
)

func newSchemaCmd() *cobra.Command {
	var apply bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the engine and catalog DDL, or apply it with --apply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !apply {
				env, err := loadCatalog()
				if err != nil {
					return err
				}
				ddl, err := wholesale.Schema(env.reg, env.meta.Group())
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), ddl)
				return err
			}

			ctx, a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			ddl, err := wholesale.Schema(a.reg, a.meta.Group())
			if err != nil {
				return err
			}
			if _, err := a.pool.Exec(ctx, ddl); err != nil {
				return withCode(exitDB, fmt.Errorf("apply schema: %w", err))
			}
			a.logger.Info("applied wholesale schema")
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "Execute the DDL against the configured database")
	return cmd
}
