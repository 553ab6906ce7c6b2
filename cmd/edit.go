package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nhle/fieldworker/internal/model"
)

var statusComment string

var taskStatusCmd = &cobra.Command{
	Use:   "status <id> <NEW|IN_PROGRESS|DONE|CANCELLED>",
	Short: "Change a task's status",
	Long:  "Changes a task's status. Offline, the change is applied locally and\nqueued for replay on the next sync.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		newStatus := model.TaskStatus(strings.ToUpper(args[1]))

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, _, cleanup, err := newEngine(cmd.Context(), cfg, quietLogger())
		if err != nil {
			return err
		}
		defer cleanup()

		task, err := engine.UpdateStatus(cmd.Context(), id, newStatus, statusComment)
		if err != nil {
			return err
		}

		if task.PendingStatus != nil {
			fmt.Printf("Task %s is now %s (queued, will sync when online).\n", task.Number, task.DisplayStatus())
		} else {
			fmt.Printf("Task %s is now %s.\n", task.Number, task.Status)
		}
		return nil
	},
}

var taskCommentCmd = &cobra.Command{
	Use:   "comment <id> <text>",
	Short: "Add a comment to a task",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}
		text := strings.Join(args[1:], " ")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, _, cleanup, err := newEngine(cmd.Context(), cfg, quietLogger())
		if err != nil {
			return err
		}
		defer cleanup()

		comment, err := engine.AddComment(cmd.Context(), id, text)
		if err != nil {
			return err
		}

		if comment != nil && comment.LocalOnly {
			fmt.Println("Comment saved locally, will sync when online.")
		} else {
			fmt.Println("Comment added.")
		}
		return nil
	},
}

var taskPlanCmd = &cobra.Command{
	Use:   "plan <id> <YYYY-MM-DD|clear>",
	Short: "Set or clear a task's planned date",
	Long:  "Sets or clears a task's planned date. Offline, the edit stays local\nand is overwritten by the next refresh; it is not queued for replay.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
		}

		var date *time.Time
		if args[1] != "clear" {
			parsed, err := time.Parse("2006-01-02", args[1])
			if err != nil {
				return fmt.Errorf("invalid date %q, expected YYYY-MM-DD or \"clear\"", args[1])
			}
			date = &parsed
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		engine, _, cleanup, err := newEngine(cmd.Context(), cfg, quietLogger())
		if err != nil {
			return err
		}
		defer cleanup()

		task, err := engine.UpdatePlannedDate(cmd.Context(), id, date)
		if err != nil {
			return err
		}

		if task.PlannedDate == nil {
			fmt.Printf("Task %s has no planned date.\n", task.Number)
		} else {
			fmt.Printf("Task %s planned for %s.\n", task.Number, task.PlannedDate.Format("2006-01-02"))
		}
		return nil
	},
}

func init() {
	taskStatusCmd.Flags().StringVarP(&statusComment, "message", "m", "", "comment to attach to the status change")
	tasksCmd.AddCommand(taskStatusCmd)
	tasksCmd.AddCommand(taskCommentCmd)
	tasksCmd.AddCommand(taskPlanCmd)
}
