// Package cli implements sitectl, a device-local tool for inspecting drafts
// and republishing sites.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/primebarber/site-backend/internal/auth"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json" | "yaml"
	User    string
	Device  string

	// Open builds the backing services; progress receives publish updates.
	Open func(ctx context.Context, progress io.Writer) (*Env, error)
}

var ValidFormats = []string{"text", "json", "yaml"}

func (o *RootOptions) session() auth.Session {
	return auth.Session{UserID: o.User, DeviceID: o.Device}
}

// NewRootCommand creates the root command for sitectl.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{Open: OpenEnv})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitectl",
		Short: "Inspect and publish generated sites from this device",
		Long: `sitectl works against the local draft file and, when the database is
reachable, the account's site records. Sites are merged the same way the
dashboard merges them.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Verbose {
				if l, err := zap.NewDevelopment(); err == nil {
					zap.ReplaceGlobals(l)
				}
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.User, "user", "", "account user id; omit to work with local drafts only")
	cmd.PersistentFlags().StringVar(&opts.Device, "device", auth.DefaultDeviceID, "draft namespace")

	cmd.AddCommand(NewSitesCommand(opts))
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewProjectNameCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
