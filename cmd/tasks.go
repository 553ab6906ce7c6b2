package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nhle/fieldworker/internal/api"
	"github.com/nhle/fieldworker/internal/model"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("252"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	statusStyles = map[model.TaskStatus]lipgloss.Style{
		model.StatusNew:        lipgloss.NewStyle().Foreground(lipgloss.Color("39")),
		model.StatusInProgress: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		model.StatusDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		model.StatusCancelled:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
	}

	priorityStyles = map[model.TaskPriority]lipgloss.Style{
		model.PriorityPlanned:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		model.PriorityCurrent:   lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		model.PriorityUrgent:    lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		model.PriorityEmergency: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
	}
)

var tasksCachedOnly bool

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List your assigned tasks",
	Long:  "Lists your assigned tasks, refreshing from the server when it is\nreachable and falling back to the local cache otherwise.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		engine, _, cleanup, err := newEngine(cmd.Context(), cfg, quietLogger())
		if err != nil {
			return err
		}
		defer cleanup()

		var tasks []model.Task
		if tasksCachedOnly {
			tasks, err = engine.Tasks(cmd.Context())
		} else {
			tasks, err = engine.RefreshTasks(cmd.Context())
		}
		if err != nil {
			if api.IsUnauthorized(err) {
				return fmt.Errorf("session expired, run `fieldworker login`: %w", err)
			}
			return err
		}

		if len(tasks) == 0 {
			fmt.Println(dimStyle.Render("No tasks assigned."))
			return nil
		}

		printTaskTable(tasks)

		pending, err := engine.PendingCount(cmd.Context())
		if err == nil && pending > 0 {
			fmt.Println(pendingStyle.Render(fmt.Sprintf("\n%d unsynced change(s) queued.", pending)))
		}
		return nil
	},
}

func printTaskTable(tasks []model.Task) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("%-6s %-10s %-12s %-9s %s", "ID", "NUMBER", "STATUS", "PRIORITY", "TITLE")))
	for _, t := range tasks {
		status := t.DisplayStatus()
		label := string(status)
		if t.PendingStatus != nil {
			// Unsynced local edit.
			label += "*"
		}
		statusCell := statusStyles[status].Render(fmt.Sprintf("%-12s", label))
		priorityCell := priorityStyles[t.Priority].Render(fmt.Sprintf("%-9s", t.Priority))
		fmt.Printf("%-6d %-10s %s %s %s\n", t.ID, t.Number, statusCell, priorityCell, t.Title)
	}
}

var taskShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a task with its comment history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseTaskID(args[0])
		if err != nil {
			return err
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

		detail, err := engine.TaskDetail(cmd.Context(), id)
		if err != nil {
			return err
		}

		t := detail.Task
		fmt.Println(headerStyle.Render(fmt.Sprintf("%s  %s", t.Number, t.Title)))
		fmt.Printf("Status:   %s", statusStyles[t.DisplayStatus()].Render(string(t.DisplayStatus())))
		if t.PendingStatus != nil {
			fmt.Printf(" %s", pendingStyle.Render("(not yet synced)"))
		}
		fmt.Println()
		fmt.Printf("Priority: %s\n", priorityStyles[t.Priority].Render(t.Priority.String()))
		if t.Address != "" {
			fmt.Printf("Address:  %s\n", t.Address)
		}
		if t.PlannedDate != nil {
			fmt.Printf("Planned:  %s\n", t.PlannedDate.Format("2006-01-02"))
		}
		if t.CustomerName != "" {
			fmt.Printf("Customer: %s", t.CustomerName)
			if t.CustomerPhone != "" {
				fmt.Printf(" (%s)", t.CustomerPhone)
			}
			fmt.Println()
		}
		if t.Description != "" {
			fmt.Printf("\n%s\n", t.Description)
		}

		if len(detail.Comments) > 0 {
			fmt.Println(headerStyle.Render("\nHistory"))
			for _, c := range detail.Comments {
				line := fmt.Sprintf("%s  %s", c.CreatedAt.Format("2006-01-02 15:04"), c.Author)
				if c.IsStatusChange() {
					line += fmt.Sprintf("  [%s -> %s]", *c.OldStatus, *c.NewStatus)
				}
				if c.LocalOnly {
					line += pendingStyle.Render("  (unsynced)")
				}
				fmt.Println(dimStyle.Render(line))
				fmt.Printf("  %s\n", c.Text)
			}
		}
		return nil
	},
}

func parseTaskID(arg string) (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(strings.TrimSpace(arg), "%d", &id); err != nil || id < 1 {
		return 0, fmt.Errorf("invalid task id %q", arg)
	}
	return id, nil
}

func init() {
	tasksCmd.Flags().BoolVar(&tasksCachedOnly, "cached", false, "skip the server and list from the local cache only")
	tasksCmd.AddCommand(taskShowCmd)
	rootCmd.AddCommand(tasksCmd)
}
