package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"example.com/habitsync/internal/app"
	"example.com/habitsync/internal/config"
	"example.com/habitsync/internal/coordinator"
	"example.com/habitsync/internal/logging"
)

var (
	cfg        config.Config
	logger     *zap.Logger
	client     *app.App
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "habitctl",
	Short: "Habits, goals and journal from the terminal",
	Long: `habitctl talks to the configured record store (STORE_BACKEND) as the
session user and prints the resulting collections.

Every write is followed by a reload of the affected collection, so the
output always reflects the store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		client, err = app.New(cmd.Context(), cfg, logger)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	rootCmd.AddGroup(
		&cobra.Group{ID: "habits", Title: "Habits:"},
		&cobra.Group{ID: "goals", Title: "Goals:"},
		&cobra.Group{ID: "journal", Title: "Journal:"},
	)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run executes one command line and releases the client it opened.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) (err error) {
	jsonOutput = false
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	defer func() {
		if client != nil {
			reportFailures(stderr, client.Coordinator, err)
			client.Close()
			client = nil
		}
		if logger != nil {
			_ = logger.Sync()
			logger = nil
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

// reportFailures prints the queued failures that the command did not already
// return, without waiting for more.
func reportFailures(w io.Writer, coord *coordinator.Coordinator, returned error) {
	if coord == nil {
		return
	}
	for {
		select {
		case f := <-coord.Failures():
			if returned != nil && errors.Is(returned, f.Err) {
				continue
			}
			fmt.Fprintf(w, "warning: %s %s failed: %v\n", f.Op, f.Kind, f.Err)
		default:
			if n := coord.DroppedFailures(); n > 0 {
				fmt.Fprintf(w, "warning: %d further failures dropped\n", n)
			}
			return
		}
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
