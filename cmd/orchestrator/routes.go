package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nulzo/content-orchestrator/internal/app"
	"github.com/nulzo/content-orchestrator/internal/cli"
	"github.com/nulzo/content-orchestrator/internal/resilience"
	"github.com/nulzo/content-orchestrator/internal/routing"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List task routes and their candidate chains",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app.App) error {
			routes, static := a.Router.Routes(ctx)
			if static {
				fmt.Println(cli.Style("using the static routing table", cli.Yellow))
			}
			for _, r := range routes {
				chain := routing.Candidates(r, func(p string) string { return a.Registry.DefaultModel(ctx, p) })
				names := make([]string, 0, len(chain))
				for _, c := range chain {
					name := c.String()
					if _, ok := a.Registry.Get(ctx, c.Provider); !ok {
						name = cli.Style(name, cli.Dim)
					}
					names = append(names, name)
				}
				fmt.Printf("%s %s  retries=%d timeout=%s max=$%.2f\n    %s\n",
					cli.Arrow(), cli.Style(r.Task, cli.Bold), r.MaxRetries, r.Timeout, r.MaxCostPerRequest,
					strings.Join(names, " -> "))
			}
			return nil
		})
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List usable providers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withApp(ctx, func(a *app.App) error {
			for _, p := range a.Registry.List(ctx) {
				state := a.Breakers.Get(resilience.LLMDependency(p.Name())).State().String()
				fmt.Printf("%s %-12s %-10s %-36s %s\n", cli.CheckMark(), p.Name(), p.Kind(), p.DefaultModel(), cli.BreakerState(state))
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(routesCmd, providersCmd)
}
