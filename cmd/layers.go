package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/barrio-cli/internal/dashboard"
)

var (
	layersVariant string
	layersZoom    int
	layersOut     string
)

var layersCmd = &cobra.Command{
	Use:   "layers",
	Short: "Write a map variant's polygons as GeoJSON",
	RunE: func(cmd *cobra.Command, _ []string) error {
		v, err := dashboard.ParseVariant(layersVariant)
		if err != nil {
			return err
		}
		env, err := loadDashboard(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		fc, err := env.Dashboard.Layers(v, layersZoom)
		if err != nil {
			return err
		}

		var w io.Writer = os.Stdout
		if layersOut != "" && layersOut != "-" {
			f, err := os.Create(layersOut)
			if err != nil {
				return eris.Wrap(err, "layers: create output")
			}
			defer func() { _ = f.Close() }()
			w = f
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(fc); err != nil {
			return eris.Wrap(err, "layers: encode geojson")
		}
		if layersOut != "" && layersOut != "-" {
			fmt.Fprintf(os.Stderr, "wrote %d features to %s\n", len(fc.Features), layersOut)
		}
		return nil
	},
}

var legendCmd = &cobra.Command{
	Use:   "legend <variant|scale>",
	Short: "Print the color legend of a map variant or named scale",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		entries, err := dashboard.Legend(args[0])
		if err != nil {
			return err
		}
		formatLegend(os.Stdout, entries)
		return nil
	},
}

var (
	locateLat float64
	locateLon float64
)

var locateCmd = &cobra.Command{
	Use:   "locate",
	Short: "Find the neighborhood containing a point",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := loadDashboard(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		name, ok := env.Dashboard.Locate(locateLat, locateLon)
		if !ok {
			return eris.Errorf("locate: (%g, %g) is outside every neighborhood", locateLat, locateLon)
		}
		fmt.Println(name)
		return nil
	},
}

func init() {
	layersCmd.Flags().StringVar(&layersVariant, "variant", string(dashboard.Demographic), "demographic, local_count or average_price")
	layersCmd.Flags().IntVar(&layersZoom, "zoom", 0, "zoom level for label visibility (default: fitted)")
	layersCmd.Flags().StringVarP(&layersOut, "out", "o", "", "output file (default stdout)")

	locateCmd.Flags().Float64Var(&locateLat, "lat", 0, "latitude")
	locateCmd.Flags().Float64Var(&locateLon, "lon", 0, "longitude")
	_ = locateCmd.MarkFlagRequired("lat")
	_ = locateCmd.MarkFlagRequired("lon")

	rootCmd.AddCommand(layersCmd, legendCmd, locateCmd)
}
