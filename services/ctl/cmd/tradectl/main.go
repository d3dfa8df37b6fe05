package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tradeforge/services/ctl"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "tradectl",
		Short:         "Utility for operating tradeforge bot runs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", ctl.DefaultConfigPath(), "Path to the tradectl config file")

	cmd.AddCommand(newBotsCommand(&configPath))
	cmd.AddCommand(newRunsCommand(&configPath))
	return cmd
}

func newBotsCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bots",
		Short: "Bot inspection operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List registered bots",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, err := newClient(cmd, *configPath)
			if err != nil {
				return err
			}
			out, err := client.ListBots(ctx)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	})
	return cmd
}

func newRunsCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Run lifecycle operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newRunsStopCommand(configPath))
	cmd.AddCommand(newRunsStopAllCommand(configPath))
	cmd.AddCommand(newRunsReconcileCommand(configPath))
	cmd.AddCommand(newRunsEventsCommand(configPath))
	cmd.AddCommand(newRunsArchiveCommand(configPath))
	return cmd
}

func newRunsStopCommand(configPath *string) *cobra.Command {
	var botID string

	cmd := &cobra.Command{
		Use:   "stop <run-id>",
		Short: "Stop a single run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, err := newClient(cmd, *configPath)
			if err != nil {
				return err
			}
			out, err := client.StopRun(ctx, botID, args[0])
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&botID, "bot", "", "ID of the bot that owns the run")
	_ = cmd.MarkFlagRequired("bot")
	return cmd
}

func newRunsStopAllCommand(configPath *string) *cobra.Command {
	var botID string

	cmd := &cobra.Command{
		Use:   "stop-all",
		Short: "Stop every active run",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, err := newClient(cmd, *configPath)
			if err != nil {
				return err
			}
			out, err := client.StopAll(ctx, botID)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&botID, "bot", "", "Limit the stop to one bot's runs")
	return cmd
}

func newRunsReconcileCommand(configPath *string) *cobra.Command {
	var botID string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Force-fail runs whose worker lease has gone stale",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, err := newClient(cmd, *configPath)
			if err != nil {
				return err
			}
			out, err := client.Reconcile(ctx, botID)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&botID, "bot", "", "Limit the sweep to one bot's runs")
	return cmd
}

func newRunsEventsCommand(configPath *string) *cobra.Command {
	var (
		after string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "events <run-id>",
		Short: "Show the event log for a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, err := newClient(cmd, *configPath)
			if err != nil {
				return err
			}
			out, err := client.ListEvents(ctx, args[0], after, limit)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&after, "after", "", "Only events after this RFC3339 timestamp")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of events to return")
	return cmd
}

func newRunsArchiveCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive <run-id>",
		Short: "Export a finished run's event log to object storage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, err := newClient(cmd, *configPath)
			if err != nil {
				return err
			}
			out, err := client.ArchiveRun(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	return cmd
}

func newClient(cmd *cobra.Command, configPath string) (*ctl.Client, context.Context, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := ctl.LoadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	return ctl.NewClient(cfg), ctx, nil
}

func printJSON(raw json.RawMessage) error {
	var buf any
	if err := json.Unmarshal(raw, &buf); err != nil {
		fmt.Println(string(raw))
		return nil
	}
	pretty, err := json.MarshalIndent(buf, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(pretty))
	return nil
}
