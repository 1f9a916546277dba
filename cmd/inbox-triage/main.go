package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"inbox-triage-go/internal/app"
)

var triageLimit int

var rootCmd = &cobra.Command{
	Use:   "inbox-triage",
	Short: "Ingest, classify and draft replies for inbox messages",
	Long: `inbox-triage pulls recent messages from Gmail (or a mock mailbox),
classifies them with a language model and drafts first-response replies.

Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Run()
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.Run()
	},
}

var triageCmd = &cobra.Command{
	Use:   "triage",
	Short: "Run one ingest-and-triage cycle and print the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := app.Load(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Triage.RunTriage(ctx, triageLimit)
		if err != nil {
			return fmt.Errorf("triage run failed: %w", err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every stored message",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := app.Load(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.Triage.Reset(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d messages\n", deleted)
		return nil
	},
}

func init() {
	triageCmd.Flags().IntVar(&triageLimit, "limit", 0, "number of messages to fetch (0 uses triage.sync_limit)")
	rootCmd.AddCommand(serveCmd, triageCmd, resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Errorf("application error: %v", err)
		os.Exit(1)
	}
}
