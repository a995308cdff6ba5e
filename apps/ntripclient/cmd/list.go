package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/goblimey/go-ntrip-client/sourcetable"
)

// mountRow is one line of the mount table.
type mountRow struct {
	Name           string
	Country        string
	Latitude       string
	Longitude      string
	Protocol       sourcetable.Protocol
	Network        sourcetable.Network
	Constellations string
}

func newMountRow(m *sourcetable.MountInfo) mountRow {
	constellations := make([]string, 0, len(m.Constellations))
	for _, c := range m.Constellations {
		constellations = append(constellations, c.String())
	}
	return mountRow{
		Name:           m.Name,
		Country:        m.CountryCode(),
		Latitude:       fmt.Sprintf("%.2f", m.Location.Latitude),
		Longitude:      fmt.Sprintf("%.2f", m.Location.Longitude),
		Protocol:       m.Protocol,
		Network:        m.Network,
		Constellations: strings.Join(constellations, "+"),
	}
}

func newListCommand(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the caster's mounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.fetchSourcetable(cmd.Context(), timeout)
			if err != nil {
				return err
			}

			if !a.tableOutput() {
				return a.print(cmd, info)
			}

			rows := make([]mountRow, 0, len(info.Mounts))
			for i := range info.Mounts {
				rows = append(rows, newMountRow(&info.Mounts[i]))
			}
			return a.print(cmd, rows)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "time allowed to fetch the sourcetable")

	return cmd
}

// fetchSourcetable fetches the configured caster's sourcetable.
func (a *app) fetchSourcetable(ctx context.Context, timeout time.Duration) (*sourcetable.ServerInfo, error) {
	client, err := a.client()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return client.ListMounts(ctx)
}
