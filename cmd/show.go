package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/barrio-cli/internal/dashboard"
)

var showSimilar bool

var showCmd = &cobra.Command{
	Use:   "show [neighborhood]",
	Short: "Show one neighborhood, or the last viewed one",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		rec, err := env.Dashboard.MapView(ctx, name)
		if err != nil {
			return err
		}
		formatNeighborhood(os.Stdout, rec)

		price, err := env.Dashboard.AveragePrice(ctx, rec.Name)
		switch {
		case err == nil:
			fmt.Printf("Precio medio locales vacíos: %s €/m²\n", numberText(price.AveragePrice))
		case !eris.Is(err, dashboard.ErrNotFound):
			zap.L().Warn("average price unavailable", zap.String("neighborhood", rec.Name), zap.Error(err))
		}

		if !showSimilar {
			return nil
		}
		similar, err := env.Dashboard.Similar(ctx, rec.Name)
		if err != nil {
			return err
		}
		fmt.Println()
		fmt.Println("Barrios con renta similar:")
		for _, s := range similar {
			fmt.Printf("  %s\t%s\n", s.Name, numberText(s.Income))
		}
		return nil
	},
}

var lastLimit int

var lastCmd = &cobra.Command{
	Use:   "last",
	Short: "List recently viewed neighborhoods",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()

		views, err := st.RecentViews(ctx, lastLimit)
		if err != nil {
			return err
		}
		if len(views) == 0 {
			fmt.Println("No neighborhood viewed yet.")
			return nil
		}
		formatViews(os.Stdout, views)
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showSimilar, "similar", false, "also list neighborhoods with a similar income")
	lastCmd.Flags().IntVar(&lastLimit, "limit", 10, "number of views to list")
	rootCmd.AddCommand(showCmd, lastCmd)
}
