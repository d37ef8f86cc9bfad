package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sells-group/barrio-cli/internal/barrio"
	"github.com/sells-group/barrio-cli/internal/chart"
	"github.com/sells-group/barrio-cli/internal/dashboard"
	"github.com/sells-group/barrio-cli/internal/store"
)

func formatCity(w io.Writer, c barrio.City) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Barrios\t%d\n", c.Neighborhoods)
	fmt.Fprintf(tw, "Población\t%.0f\n", c.Population)
	fmt.Fprintf(tw, "Renta\t%s\n", c.Income)
	fmt.Fprintf(tw, "Estudios bajos\t%s\n", c.LowEducation)
	fmt.Fprintf(tw, "Trabajadores baja calificación\t%s\n", c.LowSkilledWorkers)
	fmt.Fprintf(tw, "Población ocupada\t%s\n", c.Employed)
	if c.MalformedFields > 0 {
		fmt.Fprintf(tw, "Campos malformados\t%d\n", c.MalformedFields)
	}
	_ = tw.Flush()
}

func formatNeighborhood(w io.Writer, n barrio.Neighborhood) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Nombre\t%s\n", n.Name)
	if n.District != "" {
		fmt.Fprintf(tw, "Distrito\t%s\n", n.District)
	}
	for _, f := range []struct {
		label string
		val   barrio.Number
	}{
		{"Renta", n.Income},
		{"Población", n.Population},
		{"Densidad", n.Density},
		{"Estudios bajos", n.LowEducation},
		{"Trabajadores baja calificación", n.LowSkilledWorkers},
		{"Población ocupada", n.Employed},
	} {
		fmt.Fprintf(tw, "%s\t%s\n", f.label, numberText(f.val))
	}
	_ = tw.Flush()
}

func numberText(n barrio.Number) string {
	switch {
	case n.Valid():
		return barrio.FormatNumber(barrio.Rate{Value: n.Value, Valid: true})
	case n.Malformed:
		return n.Raw + " (malformado)"
	default:
		return "N/A"
	}
}

func formatSeries(w io.Writer, s chart.Series) {
	if s.Title != "" {
		fmt.Fprintln(w, s.Title)
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i := range s.Labels {
		fmt.Fprintf(tw, "%s\t%g\t%s\n", s.Labels[i], s.Values[i], s.ColorForIndex(i))
	}
	_ = tw.Flush()
}

func formatLegend(w io.Writer, entries []chart.LegendEntry) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\n", e.Label, e.Color)
	}
	_ = tw.Flush()
}

func formatViews(w io.Writer, views []store.View) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BARRIO\tVISTO")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\n", v.Name, v.ViewedAt.Local().Format("2006-01-02 15:04:05"))
	}
	_ = tw.Flush()
}

func formatCompetitors(w io.Writer, c dashboard.Competitors) {
	if c.Neighborhood != "" {
		fmt.Fprintf(w, "Barrio: %s\n", c.Neighborhood)
	}
	fmt.Fprintf(w, "Restaurantes: %d\n\n", c.Count)
	busiest := chart.FromItems("Barrios con más restaurantes", c.Busiest, nil)
	quietest := chart.FromItems("Barrios con menos restaurantes", c.Quietest, nil)
	for _, s := range []chart.Series{c.Cuisines, c.Prices, c.Ratings, c.Accessibility, busiest, quietest} {
		if s.Len() == 0 {
			continue
		}
		formatSeries(w, s)
		fmt.Fprintln(w)
	}
	if len(c.Nearby) > 0 {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "CERCANOS\tTIPO\tNOTA\tKM")
		for _, n := range c.Nearby {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\n", n.Name, n.Type, numberText(n.Rating), n.DistanceKm)
		}
		_ = tw.Flush()
	}
}
