package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/primebarber/site-backend/internal/publish"
)

// NewPublishCommand republishes a site the user already owns.
func NewPublishCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "publish <site-id>",
		Short: "Republish a site",
		Long: `Re-upload pending images, render and deploy the site, printing the
countdown while it runs. Requires --user.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(opts, cmd)
			if opts.User == "" {
				return f.Fail(ExitCommandError, "publish requires --user", nil)
			}
			env, err := opts.Open(cmd.Context(), f.Diagnostic())
			if err != nil {
				return f.Fail(ExitCommandError, "open environment", err)
			}
			defer env.Close()

			res := env.Publisher.Run(cmd.Context(), publish.Request{
				Flow:    publish.FlowRepublish,
				SiteID:  args[0],
				Session: opts.session(),
			})
			if res.Err != nil {
				return f.Fail(ExitFailure, "publish failed", res.Err)
			}
			return f.Success(res, func(w io.Writer) {
				fmt.Fprintln(w, res.URL)
			})
		},
	}
}
