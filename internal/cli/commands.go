package cli

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/services"
)

func newJournalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "journal",
		Short: "Open today's journal and insert open tasks from other documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			rt, _, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer closeApp(ctx, rt, &err)

			s, inserted, err := rt.OpenToday(ctx)
			if err != nil {
				return err
			}
			if err := rt.Unload(ctx); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			return rt.Do(ctx, func() error {
				fmt.Fprintf(out, "%s (%s)\n", rt.Docs.Title(), s.Ref().Path())
				fmt.Fprintf(out, "inserted %d open task(s)\n", inserted)
				for _, b := range s.Editor().State().Doc {
					if b.Type != services.TaskNodeName {
						continue
					}
					if task, ok := rt.Registry.Task(b.Attr("id")); ok {
						writeTask(out, services.TaskRow(task, rt.Now()))
					}
				}
				return nil
			})
		},
	}
}

func newTasksCmd(a *app) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List the tasks of the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			rt, _, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer closeApp(ctx, rt, &err)

			out := cmd.OutOrStdout()
			return rt.Do(ctx, func() error {
				n := 0
				for _, task := range rt.Registry.Tasks() {
					if !all && !task.IsOpen() {
						continue
					}
					writeTask(out, services.TaskRow(task, rt.Now()))
					n++
				}
				if n == 0 {
					fmt.Fprintln(out, "no tasks")
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include completed, archived and deleted tasks")
	return cmd
}

func newAddCmd(a *app) *cobra.Command {
	var due string
	var priority int
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Create a task",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			title := strings.TrimSpace(strings.Join(args, " "))
			patch := domain.TaskPatch{Title: &title}
			if priority != 0 {
				patch.Priority = &priority
			}
			if due != "" {
				d, err := time.Parse(time.DateOnly, due)
				if err != nil {
					return fmt.Errorf("invalid --due %q: want YYYY-MM-DD", due)
				}
				patch.DueAt = domain.Some(d)
			}
			if err := patch.Validate(); err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, _, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer closeApp(ctx, rt, &err)

			return rt.Do(ctx, func() error {
				task, err := rt.Registry.CreateTask(ctx, patch)
				if err != nil {
					return err
				}
				writeTask(cmd.OutOrStdout(), services.TaskRow(task, rt.Now()))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&priority, "priority", 0, fmt.Sprintf("Priority 0-%d", domain.MaxPriority))
	return cmd
}

func newCompleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <task-id>",
		Short: "Check off a task, or uncheck a completed one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx := cmd.Context()
			rt, _, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer closeApp(ctx, rt, &err)

			return rt.Do(ctx, func() error {
				if err := rt.TaskItem.ToggleComplete(ctx, args[0]); err != nil {
					return err
				}
				task, _ := rt.Registry.Task(args[0])
				writeTask(cmd.OutOrStdout(), services.TaskRow(task, rt.Now()))
				return nil
			})
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print task and file changes made by other clients until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, project, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer closeApp(context.WithoutCancel(ctx), rt, &err)

			out := cmd.OutOrStdout()
			rt.Registry.OnChange(func(task *domain.Task) {
				fmt.Fprint(out, "task ")
				writeTask(out, services.TaskRow(task, rt.Now()))
			})
			rt.Files.OnRename(func(r services.FileRename) {
				fmt.Fprintf(out, "rename %s %q\n", r.FileID, r.Name)
			})
			rt.Files.OnTreeChange(func(projectID string) {
				fmt.Fprintf(out, "tree %s (%d files)\n", projectID, len(rt.Files.Files(projectID)))
			})

			fmt.Fprintf(out, "watching %s\n", project.ID)
			<-ctx.Done()
			return nil
		},
	}
}

// writeTask prints one task line: status, title, markers and id
func writeTask(w io.Writer, row services.TaskRowView) {
	status := "[ ]"
	switch {
	case row.Status != services.RowCheckbox:
		status = row.Status.Label()
	case row.Checked:
		status = "[x]"
	}

	parts := []string{status, row.Title}
	if row.InProgress {
		parts = append(parts, "IN PROGRESS")
	}
	if row.DueLabel != "" {
		due := "due " + row.DueLabel
		if row.Overdue && !row.Checked {
			due += " (overdue)"
		}
		parts = append(parts, due)
	}
	if row.PriorityLabel != "" {
		parts = append(parts, row.PriorityLabel)
	}
	parts = append(parts, "#"+row.ID)
	fmt.Fprintln(w, strings.Join(parts, "  "))
}
