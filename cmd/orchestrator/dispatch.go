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
	"github.com/nulzo/content-orchestrator/internal/llm"
	"github.com/nulzo/content-orchestrator/internal/notify"
	"github.com/nulzo/content-orchestrator/internal/orchestrator"
)

var (
	dispatchTask      string
	dispatchKind      string
	dispatchSystem    string
	dispatchMaxTokens int
	dispatchRaw       bool

	batchFile   string
	batchNotify bool
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch [prompt]",
	Short: "Run one prompt through the provider chain of a task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		req := orchestrator.Request{
			Task:    dispatchTask,
			Kind:    orchestrator.RequestKind(dispatchKind),
			Options: llm.Options{MaxTokens: dispatchMaxTokens, SystemPrompt: dispatchSystem},
		}
		switch req.Kind {
		case orchestrator.KindEmbed:
			req.Texts = args
		case orchestrator.KindChat:
			req.Messages = []llm.Message{{Role: "user", Content: args[0]}}
		default:
			req.Prompt = args[0]
		}

		return withApp(ctx, func(a *app.App) error {
			out, err := a.Orchestrator.Dispatch(ctx, req)
			if err != nil {
				return err
			}
			if dispatchRaw {
				fmt.Println(out.Result.Content)
				return nil
			}
			printOutcome(out)
			return nil
		})
	},
}

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Dispatch every request of a JSON file, one after another",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		items, err := readBatch(batchFile)
		if err != nil {
			return err
		}

		return withApp(ctx, func(a *app.App) error {
			report := a.Orchestrator.Batch(ctx, items, cfg.Batch.Interval)
			fmt.Printf("%s %d/%d succeeded, %d failed, %d skipped, $%.4f\n",
				cli.Arrow(), report.Succeeded, report.Total, report.Failed, report.Skipped, report.TotalCost)
			for _, it := range report.Items {
				if it.Err != nil {
					fmt.Printf("  %s %s: %s\n", cli.CrossMark(), it.ID, it.Error)
				} else {
					fmt.Printf("  %s %s: %s\n", cli.CheckMark(), it.ID, it.Outcome.Candidate)
				}
			}
			if batchNotify {
				return a.Notifier.Notify(ctx, notify.Summarize(report))
			}
			return nil
		})
	},
}

// batchEntry is one line of a batch file.
type batchEntry struct {
	ID        string        `json:"id"`
	Task      string        `json:"task"`
	Kind      string        `json:"kind"`
	Prompt    string        `json:"prompt"`
	Messages  []llm.Message `json:"messages"`
	Texts     []string      `json:"texts"`
	MaxTokens int           `json:"max_tokens"`
}

func readBatch(path string) ([]orchestrator.BatchItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read batch file")
	}
	var entries []batchEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, eris.Wrap(err, "parse batch file")
	}
	items := make([]orchestrator.BatchItem, 0, len(entries))
	for i, e := range entries {
		if e.Task == "" {
			return nil, eris.Errorf("entry %d: task is required", i)
		}
		id := e.ID
		if id == "" {
			id = fmt.Sprintf("%d", i+1)
		}
		kind := orchestrator.RequestKind(e.Kind)
		if kind == "" {
			kind = orchestrator.KindText
		}
		items = append(items, orchestrator.BatchItem{ID: id, Request: orchestrator.Request{
			Task:     e.Task,
			Kind:     kind,
			Prompt:   e.Prompt,
			Messages: e.Messages,
			Texts:    e.Texts,
			Options:  llm.Options{MaxTokens: e.MaxTokens},
		}})
	}
	return items, nil
}

func printOutcome(out *orchestrator.Outcome) {
	fmt.Printf("%s %s via %s\n", cli.CheckMark(), out.TaskType, cli.Style(out.Candidate.String(), cli.Cyan))
	if out.FallbackUsed {
		fmt.Printf("%s fallback used after %d failed candidate(s)\n", cli.Style("!", cli.Yellow), len(out.Failures))
		for _, f := range out.Failures {
			fmt.Printf("  %s %s\n", cli.CrossMark(), f)
		}
	}
	r := out.Result
	fmt.Printf("%s tokens %d in / %d out, $%.6f, %dms\n", cli.Style("usage", cli.Dim),
		r.Usage.PromptTokens, r.Usage.CompletionTokens, r.Cost, r.LatencyMs)
	switch {
	case len(out.Data) > 0:
		fmt.Println(cli.PrettyFormat([]byte(out.Data)))
	case r.URL != "":
		fmt.Println(r.URL)
	case len(r.Embeddings) > 0:
		fmt.Printf("%d vectors of %d dimensions\n", len(r.Embeddings), len(r.Embeddings[0]))
	default:
		fmt.Println(r.Content)
	}
}

func init() {
	dispatchCmd.Flags().StringVarP(&dispatchTask, "task", "t", "content-generation", "task type to route")
	dispatchCmd.Flags().StringVarP(&dispatchKind, "kind", "k", string(orchestrator.KindText), "chat, text, json, image or embed")
	dispatchCmd.Flags().StringVar(&dispatchSystem, "system", "", "system prompt")
	dispatchCmd.Flags().IntVar(&dispatchMaxTokens, "max-tokens", 0, "completion token limit")
	dispatchCmd.Flags().BoolVar(&dispatchRaw, "raw", false, "print only the generated text")
	rootCmd.AddCommand(dispatchCmd)

	batchCmd.Flags().StringVarP(&batchFile, "file", "f", "", "JSON array of requests")
	batchCmd.Flags().BoolVar(&batchNotify, "notify", false, "send the run summary to the notification sinks")
	_ = batchCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(batchCmd)
}
