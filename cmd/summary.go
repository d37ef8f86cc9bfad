package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/barrio-cli/pkg/urbanapi"
)

var summaryFilters urbanapi.Filters

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print the population-weighted Barcelona summary",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx, "cli")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Dashboard.SetFilters(ctx, summaryFilters); err != nil {
			return err
		}
		formatCity(os.Stdout, env.Dashboard.City())
		return nil
	},
}

func addFilterFlags(cmd *cobra.Command, f *urbanapi.Filters) {
	cmd.Flags().StringVar(&f.AgeRange, "age-range", "", "age range filter (all for none)")
	cmd.Flags().StringVar(&f.Income, "income", "", "income filter (all for none)")
	cmd.Flags().StringVar(&f.HouseholdSize, "household-size", "", "household size filter (all for none)")
}

func init() {
	addFilterFlags(summaryCmd, &summaryFilters)
	rootCmd.AddCommand(summaryCmd)
}
