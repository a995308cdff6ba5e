package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/goblimey/go-ntrip-client/sourcetable"
)

// nearestResult describes the mount found by the nearest command.
type nearestResult struct {
	Mount      string  `json:"mount" yaml:"mount"`
	DistanceKm float64 `json:"distance_km" yaml:"distance_km"`
	Country    string  `json:"country,omitempty" yaml:"country,omitempty"`
	Latitude   float64 `json:"latitude" yaml:"latitude"`
	Longitude  float64 `json:"longitude" yaml:"longitude"`
	Details    string  `json:"details" yaml:"details"`
}

func newNearestCommand(a *app) *cobra.Command {
	var (
		latitude  float64
		longitude float64
		timeout   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "nearest --lat LATITUDE --lon LONGITUDE",
		Short: "Find the caster's nearest mount within 100 km",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if latitude < -90 || latitude > 90 || longitude < -180 || longitude > 180 {
				return fmt.Errorf("position %f, %f is out of range", latitude, longitude)
			}

			info, err := a.fetchSourcetable(cmd.Context(), timeout)
			if err != nil {
				return err
			}

			mount, distance, ok := info.FindNearest(latitude, longitude)
			if !ok {
				return fmt.Errorf("no mount within %.0f km of %f, %f",
					sourcetable.MaxNearestDistanceMetres/1000, latitude, longitude)
			}

			return a.print(cmd, nearestResult{
				Mount:      mount.Name,
				DistanceKm: distance / 1000,
				Country:    mount.CountryCode(),
				Latitude:   mount.Location.Latitude,
				Longitude:  mount.Location.Longitude,
				Details:    mount.Details,
			})
		},
	}

	cmd.Flags().Float64Var(&latitude, "lat", 0, "latitude in decimal degrees, north positive")
	cmd.Flags().Float64Var(&longitude, "lon", 0, "longitude in decimal degrees, east positive")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "time allowed to fetch the sourcetable")
	cmd.MarkFlagRequired("lat")
	cmd.MarkFlagRequired("lon")

	return cmd
}
