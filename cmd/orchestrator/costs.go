package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nulzo/content-orchestrator/internal/app"
	"github.com/nulzo/content-orchestrator/internal/cli"
	"github.com/nulzo/content-orchestrator/internal/cost"
)

var (
	costsPeriod string
	costsLimit  int
	costsJSON   bool
)

var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Inspect the spend ledger",
}

var costsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Aggregate spend for the current day, week or month",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app.App) error {
			s, err := a.Tracker.Summary(ctx, cost.Period(costsPeriod))
			if err != nil {
				return err
			}
			if costsJSON {
				fmt.Println(cli.PrettyFormat(s))
				return nil
			}
			fmt.Printf("%s %s since %s\n", cli.Arrow(), cli.Style(string(s.Period), cli.Bold), s.StartDate.Format("2006-01-02"))
			fmt.Printf("  total     $%.4f over %d requests\n", s.TotalCost, s.RequestCount)
			fmt.Printf("  success   %.1f%%\n", s.SuccessRate*100)
			fmt.Printf("  latency   %.0fms avg\n", s.AvgLatencyMs)
			printBreakdown("provider", s.ByProvider)
			printBreakdown("model", s.ByModel)
			printBreakdown("task", s.ByTaskType)
			return nil
		})
	},
}

var costsLimitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Show spend against the configured limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app.App) error {
			st, err := a.Tracker.CheckLimits(ctx)
			if err != nil {
				return err
			}
			if costsJSON {
				fmt.Println(cli.PrettyFormat(st))
				return nil
			}
			warn := a.Tracker.Limits().WarningThreshold
			fmt.Printf("  daily    $%8.4f / $%.2f  %s\n", st.Daily, st.DailyLimit, cli.Percent(st.DailyPercent/100, warn))
			fmt.Printf("  monthly  $%8.4f / $%.2f  %s\n", st.Monthly, st.MonthlyLimit, cli.Percent(st.MonthlyPercent/100, warn))
			for _, w := range st.Warnings {
				fmt.Printf("  %s %s\n", cli.Style("!", cli.Yellow), w)
			}
			return nil
		})
	},
}

var costsRecentCmd = &cobra.Command{
	Use:   "recent",
	Short: "List the newest ledger entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app.App) error {
			entries, err := a.Tracker.Recent(ctx, costsLimit)
			if err != nil {
				return err
			}
			if costsJSON {
				fmt.Println(cli.PrettyFormat(entries))
				return nil
			}
			for _, e := range entries {
				mark := cli.CheckMark()
				if !e.Success {
					mark = cli.CrossMark()
				}
				fmt.Printf("%s %s  %-22s %-32s $%.6f  %s\n", mark, e.CreatedAt.Format("01-02 15:04:05"),
					e.TaskType, e.Provider+"/"+e.Model, e.Cost, e.Error)
			}
			return nil
		})
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Delete ledger entries past the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app.App) error {
			n, err := a.Tracker.Cleanup(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s removed %d entries\n", cli.CheckMark(), n)
			return nil
		})
	},
}

func printBreakdown(label string, m map[string]float64) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return m[keys[i]] > m[keys[j]] })
	fmt.Printf("  by %s\n", label)
	for _, k := range keys {
		fmt.Printf("    %s $%.4f\n", padRight(k, 32), m[k])
	}
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

func init() {
	costsCmd.PersistentFlags().BoolVar(&costsJSON, "json", false, "print JSON")
	costsSummaryCmd.Flags().StringVarP(&costsPeriod, "period", "p", string(cost.PeriodDay), "day, week or month")
	costsRecentCmd.Flags().IntVarP(&costsLimit, "limit", "n", 20, "number of entries")

	costsCmd.AddCommand(costsSummaryCmd, costsLimitsCmd, costsRecentCmd)
	rootCmd.AddCommand(costsCmd, sweepCmd)
}
