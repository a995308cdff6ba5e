package cmd

import (
	"github.com/spf13/cobra"

	"github.com/goblimey/go-ntrip-client/config"
	"github.com/goblimey/go-ntrip-client/ntrip"
)

// providerRow is one line of the providers table.
type providerRow struct {
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url" yaml:"url"`
	Description string `json:"description" yaml:"description"`
}

func newProvidersCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List the well-known casters that can be given by name",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows []providerRow
			for _, p := range config.Providers() {
				rows = append(rows, providerRow{p.Name, p.Endpoint.String(), p.Description})
			}
			return a.print(cmd, rows)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(ntrip.DefaultUserAgent())
		},
	}
}
