package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/primebarber/site-backend/internal/deploy"
	"github.com/primebarber/site-backend/internal/storage/postgres"
)

func NewProjectNameCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "project-name <seed>",
		Short:         "Print the hosting project name derived from a shop name",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := deploy.ProjectName(args[0])
			return formatter(opts, cmd).Success(map[string]string{"seed": args[0], "projectName": name}, func(w io.Writer) {
				fmt.Fprintln(w, name)
			})
		},
	}
}

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Apply the site records schema",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := formatter(opts, cmd)
			env, err := opts.Open(cmd.Context(), f.Diagnostic())
			if err != nil {
				return f.Fail(ExitCommandError, "open environment", err)
			}
			defer env.Close()

			if env.Records == nil {
				return f.Fail(ExitCommandError, "database is unreachable", nil)
			}
			if err := postgres.Migrate(cmd.Context(), env.Records); err != nil {
				return f.Fail(ExitFailure, "migrate", err)
			}
			return f.Success(map[string]bool{"migrated": true}, func(w io.Writer) {
				fmt.Fprintln(w, "Schema is up to date.")
			})
		},
	}
}
