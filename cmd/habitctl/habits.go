package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"example.com/habitsync/internal/coordinator"
	"example.com/habitsync/internal/domain"
)

var habitsCmd = &cobra.Command{
	Use:     "habits",
	GroupID: "habits",
	Short:   "List habits with their streaks",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.Coordinator.Reload(cmd.Context(), domain.KindHabit); err != nil {
			return err
		}
		return printHabits(cmd.OutOrStdout(), client.Coordinator.Habits())
	},
}

var checkInCmd = &cobra.Command{
	Use:     "check-in <habit-id>",
	GroupID: "habits",
	Short:   "Record today's check-in for a habit",
	Long: `Record today's check-in for a habit.

The streak grows by one. Checking in again on the same day is accepted
and leaves the streak unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		changed, err := client.Coordinator.CheckIn(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !changed && !jsonOutput {
			fmt.Fprintln(cmd.OutOrStdout(), "Already checked in today")
		}
		return printHabits(cmd.OutOrStdout(), client.Coordinator.Habits())
	},
}

var habitCmd = &cobra.Command{
	Use:     "habit",
	GroupID: "habits",
	Short:   "Manage habits",
}

var habitAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Create a habit",
	Example: `  habitctl habit add --name "Daily Exercise" --type good
  habitctl habit add --name Smoking --type bad`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		kind, _ := cmd.Flags().GetString("type")

		id, err := client.Coordinator.CreateHabit(cmd.Context(), domain.NewHabit{Name: name, Type: domain.HabitType(kind)})
		if err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Fprintf(cmd.OutOrStdout(), "Created habit %s\n", id)
		}
		return printHabits(cmd.OutOrStdout(), client.Coordinator.Habits())
	},
}

func init() {
	habitAddCmd.Flags().String("name", "", "Habit name")
	habitAddCmd.Flags().String("type", string(domain.HabitGood), "Habit type: good or bad")

	habitCmd.AddCommand(habitAddCmd)
	rootCmd.AddCommand(habitsCmd)
	rootCmd.AddCommand(checkInCmd)
	rootCmd.AddCommand(habitCmd)
}

func printHabits(w io.Writer, snap coordinator.Snapshot[domain.Habit]) error {
	if jsonOutput {
		return printJSON(w, snap.Items)
	}
	if len(snap.Items) == 0 {
		fmt.Fprintln(w, "No habits yet")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSTREAK\tLONGEST\tLAST CHECK-IN")
	for _, h := range snap.Items {
		last := h.LastChecked
		if last == "" {
			last = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n", h.ID, h.Name, h.Type, h.Streak, h.LongestStreak, last)
	}
	return tw.Flush()
}
