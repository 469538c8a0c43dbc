package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/primebarber/site-backend/internal/sites/domain"
)

func NewSitesCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sites",
		Short: "List and inspect sites",
	}
	cmd.AddCommand(newSitesListCommand(opts))
	cmd.AddCommand(newSitesShowCommand(opts))
	return cmd
}

func newSitesListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List sites, freshest first",
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

			sites := env.Sites.LoadAll(cmd.Context(), opts.session())
			return f.Success(sites, func(w io.Writer) { writeSiteTable(w, sites) })
		},
	}
}

func writeSiteTable(w io.Writer, sites []domain.SiteInstance) {
	if len(sites) == 0 {
		fmt.Fprintln(w, "No sites.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSHOP\tSTATUS\tSAVED\tURL")
	for _, s := range sites {
		url := "-"
		if s.DeployedURL != nil {
			url = *s.DeployedURL
		}
		saved := time.UnixMilli(s.LastSaved).UTC().Format(time.RFC3339)
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.Data.ShopName, s.DeploymentStatus, saved, url)
	}
	_ = tw.Flush()
}

func newSitesShowCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id>",
		Short:         "Print the freshest copy of one site",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := formatter(opts, cmd)
			env, err := opts.Open(cmd.Context(), f.Diagnostic())
			if err != nil {
				return f.Fail(ExitCommandError, "open environment", err)
			}
			defer env.Close()

			site, err := env.Sites.Get(cmd.Context(), opts.session(), args[0])
			if errors.Is(err, domain.ErrSiteNotFound) {
				return f.Fail(ExitFailure, "site "+args[0]+" not found", nil)
			}
			if err != nil {
				return f.Fail(ExitCommandError, "load site", err)
			}
			return f.Success(site, func(w io.Writer) {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				_ = enc.Encode(site)
			})
		},
	}
}
