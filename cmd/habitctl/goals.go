package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"example.com/habitsync/internal/coordinator"
	"example.com/habitsync/internal/domain"
)

var goalsCmd = &cobra.Command{
	Use:     "goals",
	GroupID: "goals",
	Short:   "List goals with their progress",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := client.Coordinator.Reload(cmd.Context(), domain.KindGoal); err != nil {
			return err
		}
		return printGoals(cmd.OutOrStdout(), client.Coordinator.Goals())
	},
}

var goalCmd = &cobra.Command{
	Use:     "goal",
	GroupID: "goals",
	Short:   "Manage goals",
}

var goalAddCmd = &cobra.Command{
	Use:     "add",
	Short:   "Create a goal",
	Example: `  habitctl goal add --title "Read 12 books" --target 12 --deadline 2026-12-31`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		title, _ := cmd.Flags().GetString("title")
		target, _ := cmd.Flags().GetFloat64("target")
		current, _ := cmd.Flags().GetFloat64("current")
		deadline, _ := cmd.Flags().GetString("deadline")

		id, err := client.Coordinator.CreateGoal(cmd.Context(), domain.NewGoal{
			Title:    title,
			Target:   target,
			Current:  current,
			Deadline: deadline,
		})
		if err != nil {
			return err
		}
		if !jsonOutput {
			fmt.Fprintf(cmd.OutOrStdout(), "Created goal %s\n", id)
		}
		return printGoals(cmd.OutOrStdout(), client.Coordinator.Goals())
	},
}

var goalProgressCmd = &cobra.Command{
	Use:   "progress <goal-id> <current>",
	Short: "Set a goal's current value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		current, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return domain.Invalid("current", "must be a number")
		}
		if err := client.Coordinator.UpdateGoalProgress(cmd.Context(), args[0], current); err != nil {
			return err
		}
		return printGoals(cmd.OutOrStdout(), client.Coordinator.Goals())
	},
}

func init() {
	goalAddCmd.Flags().String("title", "", "Goal title")
	goalAddCmd.Flags().Float64("target", 0, "Target value, must be positive")
	goalAddCmd.Flags().Float64("current", 0, "Starting value")
	goalAddCmd.Flags().String("deadline", "", "Deadline as YYYY-MM-DD")

	goalCmd.AddCommand(goalAddCmd)
	goalCmd.AddCommand(goalProgressCmd)
	rootCmd.AddCommand(goalsCmd)
	rootCmd.AddCommand(goalCmd)
}

func printGoals(w io.Writer, snap coordinator.Snapshot[domain.Goal]) error {
	if jsonOutput {
		return printJSON(w, snap.Items)
	}
	if len(snap.Items) == 0 {
		fmt.Fprintln(w, "No goals yet")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tPROGRESS\tDONE\tDEADLINE")
	for _, g := range snap.Items {
		fmt.Fprintf(tw, "%s\t%s\t%g/%g\t%d%%\t%s\n", g.ID, g.Title, g.Current, g.Target, g.PercentComplete(), g.Deadline)
	}
	return tw.Flush()
}
