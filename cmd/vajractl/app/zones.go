package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vajra-io/vajra/pkg/geofence"
)

func newZonesCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "zones",
		Short: "Work with GeoJSON geofence files",
	}
	cmd.AddCommand(newZonesCheckCommand(o))
	return cmd
}

type zoneCheckResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Shape  string `json:"shape"`
	Inside *bool  `json:"inside,omitempty"`
}

func newZonesCheckCommand(o *rootOptions) *cobra.Command {
	var lat, lon float64

	cmd := &cobra.Command{
		Use:   "check FILE",
		Short: "Validate a zone file and optionally test a position against it",
		Example: `  vajractl zones check zones.geojson
  vajractl zones check zones.geojson --lat 12.9716 --lon 77.5946`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			zones, err := geofence.ParseGeoJSON(data)
			if err != nil {
				return err
			}

			testPoint := cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon")
			results := make([]zoneCheckResult, 0, len(zones))
			for _, z := range zones {
				r := zoneCheckResult{ID: z.ID, Name: z.Name, Shape: shape(z)}
				if testPoint {
					inside := z.Contains(lat, lon)
					r.Inside = &inside
				}
				results = append(results, r)
			}

			if o.output == outputJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}

			t := newTable("ID", "NAME", "SHAPE")
			if testPoint {
				t = newTable("ID", "NAME", "SHAPE", "INSIDE")
			}
			for _, r := range results {
				if r.Inside != nil {
					t.AddRow(r.ID, r.Name, r.Shape, *r.Inside)
				} else {
					t.AddRow(r.ID, r.Name, r.Shape)
				}
			}
			printTable(cmd.OutOrStdout(), t)
			fmt.Fprintf(cmd.OutOrStdout(), "%d zone(s) valid\n", len(zones))
			return nil
		},
	}

	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude to test against every zone.")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude to test against every zone.")
	return cmd
}

func shape(z geofence.Zone) string {
	if z.Circle != nil {
		return fmt.Sprintf("circle %.0fm", z.Circle.RadiusMeters)
	}
	return fmt.Sprintf("polygon %d vertices", len(z.Polygon))
}
