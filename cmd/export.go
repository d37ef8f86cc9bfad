package main

import (
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/barrio-cli/internal/dashboard"
	"github.com/sells-group/barrio-cli/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the city summary, neighborhoods and charts to xlsx or yaml",
	RunE: func(cmd *cobra.Command, _ []string) error {
		format, err := export.FormatFromPath(exportOut)
		if err != nil {
			return err
		}
		env, err := loadDashboard(cmd.Context(), "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		report := buildReport(env.Dashboard)

		f, err := os.Create(exportOut)
		if err != nil {
			return eris.Wrap(err, "export: create output")
		}
		if err := export.Write(f, format, report); err != nil {
			_ = f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrap(err, "export: close output")
		}
		zap.L().Info("export written",
			zap.String("path", exportOut),
			zap.Int("neighborhoods", len(report.Neighborhoods)),
			zap.Int("charts", len(report.Charts)),
		)
		return nil
	},
}

func buildReport(d *dashboard.Dashboard) export.Report {
	st := d.Status()
	r := export.Report{
		GeneratedAt:   time.Now(),
		City:          d.City(),
		Neighborhoods: d.Records(),
		Filters:       map[string]string{},
	}
	if st.Filters.AgeRange != "" {
		r.Filters["age_range"] = st.Filters.AgeRange
	}
	if st.Filters.Income != "" {
		r.Filters["income"] = st.Filters.Income
	}
	if st.Filters.HouseholdSize != "" {
		r.Filters["household_size"] = st.Filters.HouseholdSize
	}

	for _, m := range dashboard.Metrics() {
		s, err := d.MetricChart(m, 0)
		if err != nil || s.Len() == 0 {
			continue
		}
		r.Charts = append(r.Charts, s)
	}
	for _, field := range []string{dashboard.FieldAge, dashboard.FieldImmigration, dashboard.FieldRooms} {
		s, err := d.Distribution(dashboard.CityName, field)
		if err != nil || s.Len() == 0 {
			continue
		}
		s.Title = "Barcelona " + field
		r.Charts = append(r.Charts, s)
	}
	return r
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "barrios.xlsx", "output file (.xlsx, .yaml or .yml)")
	rootCmd.AddCommand(exportCmd)
}

