package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/iota-uz/wholesale/modules/wholesale/domain/importjob"
	"github.com/iota-uz/wholesale/modules/wholesale/services"
)

type importOptions struct {
	action string
	file   string
	run    bool
}

func newImportCmd() *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Upload a CSV or XLSX file as a new import job",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			content, err := os.ReadFile(opts.file)
			if err != nil {
				return withCode(exitUsage, err)
			}

			ctx, a, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.mod.Service.Create(ctx, &services.CreateParams{
				Action:   opts.action,
				FileName: filepath.Base(opts.file),
				User:     user,
				Content:  content,
			})
			if err != nil {
				if is(err, services.ErrInvalidParams) || is(err, services.ErrUnsupportedUpload) {
					return withCode(exitUsage, err)
				}
				return withCode(exitDB, err)
			}
			if !opts.run {
				return writeJSONLine(cmd.OutOrStdout(), job)
			}
			return runJob(ctx, cmd, a, job.ID)
		},
	}
	cmd.Flags().StringVar(&opts.action, "action", "", "Import action: add or update (required)")
	cmd.Flags().StringVar(&opts.file, "file", "", "CSV or XLSX file to import (required)")
	cmd.Flags().BoolVar(&opts.run, "run", false, "Run the job right after creating it")
	_ = cmd.MarkFlagRequired("action")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run JOB_ID",
		Short: "Run an unstarted import job",
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
			return runJob(ctx, cmd, a, id)
		},
	}
}

// runJob prints the ended job; a job that ended with errors exits with
// exitImportErrors.
func runJob(ctx context.Context, cmd *cobra.Command, a *app, id int64) error {
	job, err := a.mod.Service.Run(ctx, id)
	if err != nil {
		if is(err, importjob.ErrNotReady) || is(err, importjob.ErrNotFound) {
			return withCode(exitUsage, err)
		}
		return withCode(exitDB, err)
	}
	if err := writeJSONLine(cmd.OutOrStdout(), job); err != nil {
		return err
	}
	if job.HasErrors() {
		if job.ImportErrors != "" {
			return withCode(exitImportErrors, fmt.Errorf("import job %d stopped: %s", job.ID, job.ImportErrors))
		}
		return withCode(exitImportErrors, fmt.Errorf("import job %d ended with %d error rows", job.ID, job.ErrorRows))
	}
	return nil
}

func parseJobID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, withCode(exitUsage, fmt.Errorf("invalid job id %q", s))
	}
	return id, nil
}
