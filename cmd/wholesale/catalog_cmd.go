package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/iota-uz/wholesale/modules/wholesale/services"
)

type fieldInfo struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Target   string `json:"target,omitempty"`
	Nullable bool   `json:"nullable,omitempty"`
}

type modelInfo struct {
	Model     string      `json:"model"`
	Table     string      `json:"table"`
	NameField string      `json:"name_field,omitempty"`
	DependsOn []string    `json:"depends_on,omitempty"`
	Fields    []fieldInfo `json:"fields"`
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the importable models and their fields as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := loadCatalog()
			if err != nil {
				return err
			}
			return writeModels(cmd.OutOrStdout(), env)
		},
	}
}

func writeModels(w io.Writer, env *catalogEnv) error {
	for _, m := range env.meta.ListModels(env.meta.Group()) {
		if !env.policy.ModelAllowed(m.Name) {
			continue
		}
		info := modelInfo{
			Model:     m.Name,
			Table:     m.Table,
			NameField: m.NameField,
			DependsOn: env.meta.Dependencies(m),
			Fields:    []fieldInfo{},
		}
		for _, f := range m.Forward() {
			if !env.policy.FieldAllowed(m.Name, f.Name) {
				continue
			}
			info.Fields = append(info.Fields, fieldInfo{
				Name:     f.Name,
				Type:     f.Kind.String(),
				Target:   f.Target,
				Nullable: f.Nullable,
			})
		}
		if err := writeJSONLine(w, info); err != nil {
			return err
		}
	}
	return nil
}

func newTemplateCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "template MODEL...",
		Short: "Write an empty CSV header for the given models in dependency order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadCatalog()
			if err != nil {
				return err
			}
			tmpl, err := services.NewTemplateBuilder(env.meta, env.policy).Build(args)
			if err != nil {
				return withCode(exitUsage, err)
			}
			if output == "" {
				return tmpl.WriteCSV(cmd.OutOrStdout())
			}
			f, err := os.Create(output) //nolint:gosec
			if err != nil {
				return err
			}
			if err := tmpl.WriteCSV(f); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the template to this file instead of stdout")
	return cmd
}
