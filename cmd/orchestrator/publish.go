package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/nulzo/content-orchestrator/internal/app"
	"github.com/nulzo/content-orchestrator/internal/cli"
	"github.com/nulzo/content-orchestrator/internal/notify"
	"github.com/nulzo/content-orchestrator/internal/publish"
)

var (
	publishFile   string
	publishNotify bool
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Push content items from a JSON file to the CMS",
	Long:  "Reads a JSON array of {type, slug, content} items. Unchanged items are skipped, changed ones update the existing document.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		data, err := os.ReadFile(publishFile)
		if err != nil {
			return eris.Wrap(err, "read content file")
		}
		var items []publish.Item
		if err := json.Unmarshal(data, &items); err != nil {
			return eris.Wrap(err, "parse content file")
		}

		return withApp(ctx, func(a *app.App) error {
			if a.Publisher == nil {
				return eris.New("publishing is not configured: set PAYLOAD_URL")
			}
			report := a.Publisher.PublishAll(ctx, items)
			fmt.Printf("%s %d created, %d updated, %d skipped, %d failed\n",
				cli.Arrow(), report.Created, report.Updated, report.Skipped, report.Failed)
			for _, r := range report.Results {
				mark := cli.CheckMark()
				if r.Err != nil {
					mark = cli.CrossMark()
				}
				fmt.Printf("  %s %s/%s %s %s\n", mark, r.Type, r.Slug, r.Action, r.Error)
			}
			if publishNotify {
				return a.Notifier.Notify(ctx, notify.SummarizePublish(report, cfg.Publish.URL))
			}
			return nil
		})
	},
}

func init() {
	publishCmd.Flags().StringVarP(&publishFile, "file", "f", "", "JSON array of content items")
	publishCmd.Flags().BoolVar(&publishNotify, "notify", false, "send the run summary to the notification sinks")
	_ = publishCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(publishCmd)
}
