package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"example.com/habitsync/internal/coordinator"
	"example.com/habitsync/internal/domain"
)

var journalCmd = &cobra.Command{
	Use:     "journal",
	GroupID: "journal",
	Short:   "List journal entries, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.Coordinator.Reload(cmd.Context(), domain.KindJournal); err != nil {
			return err
		}
		return printJournal(cmd.OutOrStdout(), client.Coordinator.Journal())
	},
}

var journalAddCmd = &cobra.Command{
	Use:     "add <text>...",
	Short:   "Write today's journal entry",
	Example: `  habitctl journal add "Ran 5k before work"`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content := strings.Join(args, " ")
		id, err := client.Coordinator.AddJournalEntry(cmd.Context(), domain.NewJournalEntry{Content: content})
		if err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Fprintf(cmd.OutOrStdout(), "Created entry %s\n", id)
		}
		return printJournal(cmd.OutOrStdout(), client.Coordinator.Journal())
	},
}

var calendarCmd = &cobra.Command{
	Use:     "calendar",
	GroupID: "habits",
	Short:   "Show the habits checked in on a day",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		if date == "" {
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			date = domain.FormatDate(time.Now().In(loc))
		} else if !domain.ValidDate(date) {
			return domain.Invalid("date", "must be a yyyy-MM-dd date")
		}

		if err := client.Coordinator.Reload(cmd.Context(), domain.KindHabit); err != nil {
			return err
		}
		habits := client.Coordinator.CheckedOn(date)
		w := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(w, map[string]any{"date": date, "habits": habits})
		}
		if len(habits) == 0 {
			fmt.Fprintf(w, "No check-ins on %s\n", date)
			return nil
		}
		fmt.Fprintf(w, "%s\n", date)
		for _, h := range habits {
			fmt.Fprintf(w, "  %s (streak %d)\n", h.Name, h.Streak)
		}
		return nil
	},
}

func init() {
	calendarCmd.Flags().String("date", "", "Day as YYYY-MM-DD (default today)")

	journalCmd.AddCommand(journalAddCmd)
	rootCmd.AddCommand(journalCmd)
	rootCmd.AddCommand(calendarCmd)
}

func printJournal(w io.Writer, snap coordinator.Snapshot[domain.JournalEntry]) error {
	if jsonOutput {
		return printJSON(w, snap.Items)
	}
	if len(snap.Items) == 0 {
		fmt.Fprintln(w, "No journal entries yet")
		return nil
	}
	for _, e := range snap.Items {
		fmt.Fprintf(w, "%s  %s\n", e.Date, e.Content)
	}
	return nil
}
