package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/importjob"
)

type jobView struct {
	*importjob.ImportJob
	Status string `json:"status"`
}

func newShowCmd() *cobra.Command {
	var withRows bool
	cmd := &cobra.Command{
		Use:   "show JOB_ID",
		Short: "Print an import job and optionally its per-row results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseJobID(args[0])
			if err != nil {
				return err
			}
			ctx, a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.mod.Service.Get(ctx, id)
			if is(err, importjob.ErrNotFound) {
				return withCode(exitUsage, err)
			}
			if err != nil {
				return withCode(exitDB, err)
			}
			if err := writeJSONLine(cmd.OutOrStdout(), jobView{ImportJob: job, Status: job.Status()}); err != nil {
				return err
			}
			if !withRows {
				return nil
			}
			rows, err := a.mod.Service.Rows(ctx, id)
			if err != nil {
				return withCode(exitDB, err)
			}
			for _, r := range rows {
				if err := writeJSONLine(cmd.OutOrStdout(), r); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&withRows, "rows", false, "Also print one line per imported or errored row")
	return cmd
}

func newListCmd() *cobra.Command {
	var params importjob.FindParams
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List import jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			jobs, err := a.mod.Service.List(ctx, &params)
			if err != nil {
				return withCode(exitDB, err)
			}
			for _, job := range jobs {
				if err := writeJSONLine(cmd.OutOrStdout(), jobView{ImportJob: job, Status: job.Status()}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&params.Limit, "limit", 20, "Maximum number of jobs")
	cmd.Flags().IntVar(&params.Offset, "offset", 0, "Number of jobs to skip")
	return cmd
}

type versionView struct {
	ID         int64           `json:"id"`
	RevisionID int64           `json:"revision_id"`
	Snapshot   json.RawMessage `json:"snapshot"`
	Previous   json.RawMessage `json:"previous,omitempty"`
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history MODEL PK",
		Short: "Print the audit versions of one record, oldest first",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pk, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return withCode(exitUsage, fmt.Errorf("invalid pk %q", args[1]))
			}
			ctx, a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			model, err := a.meta.Model(args[0])
			if err != nil {
				return withCode(exitUsage, err)
			}

			versions, err := a.mod.Service.History(ctx, model.Name, pk)
			if err != nil {
				return withCode(exitDB, err)
			}
			for _, v := range versions {
				prev, err := v.Previous()
				if err != nil {
					return fmt.Errorf("version %d: %w", v.ID, err)
				}
				view := versionView{ID: v.ID, RevisionID: v.RevisionID, Snapshot: v.Snapshot, Previous: prev}
				if err := writeJSONLine(cmd.OutOrStdout(), view); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
