package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/barrio-cli/internal/dashboard"
)

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Print chart series",
}

var chartVisible int

var chartBarsCmd = &cobra.Command{
	Use:       "bars <local_count|average_price|local_price>",
	Short:     "Print the visible window of a bar chart",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(dashboard.MetricLocalCount), string(dashboard.MetricAveragePrice), string(dashboard.MetricLocalPrice)},
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := dashboard.ParseMetric(args[0])
		if err != nil {
			return err
		}
		env, err := loadDashboard(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := env.Dashboard.MetricChart(m, chartVisible)
		if err != nil {
			return err
		}
		formatSeries(os.Stdout, s)
		return nil
	},
}

var chartField string

var chartDistributionCmd = &cobra.Command{
	Use:   "distribution <neighborhood|barcelona>",
	Short: "Print a distribution of a neighborhood or the whole city",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadDashboard(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		s, err := env.Dashboard.Distribution(args[0], chartField)
		if err != nil {
			return err
		}
		formatSeries(os.Stdout, s)
		return nil
	},
}

var (
	competitorsLat float64
	competitorsLon float64
	competitorsTop int
)

var chartCompetitorsCmd = &cobra.Command{
	Use:   "competitors",
	Short: "Summarize restaurants around a point",
	RunE: func(cmd *cobra.Command, _ []string) error {
		env, err := loadDashboard(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		c, err := env.Dashboard.Competitors(cmd.Context(), competitorsLat, competitorsLon, competitorsTop)
		if err != nil {
			return err
		}
		formatCompetitors(os.Stdout, c)
		return nil
	},
}

func init() {
	chartBarsCmd.Flags().IntVar(&chartVisible, "visible", 0, "number of bars (default from config)")
	chartDistributionCmd.Flags().StringVar(&chartField, "field", dashboard.FieldAge, "age, immigration or rooms")
	chartCompetitorsCmd.Flags().Float64Var(&competitorsLat, "lat", 0, "latitude")
	chartCompetitorsCmd.Flags().Float64Var(&competitorsLon, "lon", 0, "longitude")
	chartCompetitorsCmd.Flags().IntVar(&competitorsTop, "top", 0, "cuisines and restaurants to list (default from config)")
	_ = chartCompetitorsCmd.MarkFlagRequired("lat")
	_ = chartCompetitorsCmd.MarkFlagRequired("lon")

	chartCmd.AddCommand(chartBarsCmd, chartDistributionCmd, chartCompetitorsCmd)
	rootCmd.AddCommand(chartCmd)
}
