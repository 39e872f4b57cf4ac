// Command taskctl is an operator CLI that works directly against the
// taskdesk database.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"taskdesk/internal/config"
	"taskdesk/internal/db"
	"taskdesk/pkg/activity"
	"taskdesk/pkg/report"
	"taskdesk/pkg/task"
	"taskdesk/pkg/user"
)

type app struct {
	pool     *pgxpool.Pool
	users    *user.PgStore
	tasks    *task.PgStore
	activity *activity.PgStore
	short    bool
}

func main() {
	a := &app{}
	root := &cobra.Command{
		Use:           "taskctl",
		Short:         "Operate a taskdesk database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.connect(cmd.Context())
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.pool != nil {
				a.pool.Close()
			}
		},
	}
	root.PersistentFlags().BoolVar(&a.short, "short", false, "one line per record instead of JSON")

	root.AddCommand(a.initCmd(), a.statusCmd(), a.userCmd(), a.taskCmd(), a.reportCmd(), a.activityCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "taskctl: %v\n", err)
		os.Exit(1)
	}
}

func (a *app) connect(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.Memory() {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	a.pool, err = db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	a.users = user.NewPgStore(a.pool)
	a.tasks = task.NewPgStore(a.pool)
	a.activity = activity.NewPgStore(a.pool)
	return nil
}

func (a *app) initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create database tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.users.EnsureTable(ctx); err != nil {
				return fmt.Errorf("ensure users table: %w", err)
			}
			if err := a.tasks.EnsureTable(ctx); err != nil {
				return fmt.Errorf("ensure tasks table: %w", err)
			}
			if err := a.activity.EnsureTable(ctx); err != nil {
				return fmt.Errorf("ensure activity table: %w", err)
			}
			fmt.Println(`{"status":"ok","message":"all tables initialized"}`)
			return nil
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show system summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			counts, err := a.tasks.Counts(ctx, "")
			if err != nil {
				return err
			}
			users, err := a.users.List(ctx, "")
			if err != nil {
				return err
			}
			entries, err := a.activity.Count(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]any{
				"tasks":            counts,
				"users":            len(users),
				"activity_entries": entries,
			})
		},
	}
}

func (a *app) userCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "user", Short: "User operations"}
	var role string
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := a.users.List(cmd.Context(), user.Role(role))
			if err != nil {
				return err
			}
			if a.short {
				for _, u := range users {
					fmt.Printf("%-8s  %-7s  %-20s  %s\n", truncStr(u.ID, 8), u.Role, u.Handle, u.Name)
				}
				return nil
			}
			return printJSON(users)
		},
	}
	list.Flags().StringVar(&role, "role", "", "admin or member")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := a.users.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(u)
		},
	}
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.users.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("deleted user %s\n", args[0])
			return nil
		},
	}
	cmd.AddCommand(list, get, del)
	return cmd
}

func (a *app) taskCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "task", Short: "Task operations"}
	var status, assignee string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			s := task.Status(status)
			if s != "" && !s.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			tasks, err := a.tasks.List(cmd.Context(), task.Filter{Status: s, Assignee: assignee, Limit: limit})
			if err != nil {
				return err
			}
			if a.short {
				printShortTasks(os.Stdout, tasks)
				return nil
			}
			return printJSON(tasks)
		},
	}
	list.Flags().StringVar(&status, "status", "", "Pending, In Progress or Completed")
	list.Flags().StringVar(&assignee, "assignee", "", "user ID")
	list.Flags().IntVar(&limit, "limit", 50, "maximum tasks to show")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := a.tasks.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(t)
		},
	}
	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.tasks.Delete(ctx, args[0]); err != nil {
				return err
			}
			if _, err := a.activity.Append(ctx, args[0], "", activity.TaskDeleted, map[string]any{"via": "taskctl"}); err != nil {
				fmt.Fprintf(os.Stderr, "taskctl: record activity: %v\n", err)
			}
			fmt.Printf("deleted task %s\n", args[0])
			return nil
		},
	}
	cmd.AddCommand(list, get, del)
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "report", Short: "Export reports"}
	var format, out, from, to string

	run := func(build func(ctx context.Context, b *report.Builder) (*report.Table, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			tbl, err := build(cmd.Context(), report.NewBuilder(a.tasks, a.users))
			if err != nil {
				return err
			}
			var w io.Writer = os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			switch format {
			case "json":
				return report.WriteJSON(w, tbl)
			case "xlsx":
				if out == "" {
					return fmt.Errorf("--out is required for xlsx")
				}
				return report.WriteXLSX(w, tbl)
			default:
				return fmt.Errorf("format must be json or xlsx")
			}
		}
	}

	tasks := &cobra.Command{
		Use:   "tasks",
		Short: "Tasks created in a date range",
		RunE: run(func(ctx context.Context, b *report.Builder) (*report.Table, error) {
			f, t, err := report.ParseRange(from, to)
			if err != nil {
				return nil, err
			}
			return b.TaskRows(ctx, f, t)
		}),
	}
	tasks.Flags().StringVar(&from, "from", "", "YYYY-MM-DD")
	tasks.Flags().StringVar(&to, "to", "", "YYYY-MM-DD, inclusive")

	users := &cobra.Command{
		Use:   "users",
		Short: "Task counts per user",
		RunE: run(func(ctx context.Context, b *report.Builder) (*report.Table, error) {
			return b.UserRows(ctx)
		}),
	}

	cmd.PersistentFlags().StringVar(&format, "format", "json", "json or xlsx")
	cmd.PersistentFlags().StringVar(&out, "out", "", "output file (default stdout)")
	cmd.AddCommand(tasks, users)
	return cmd
}

func (a *app) activityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "activity", Short: "Activity log operations"}
	var limit int
	list := &cobra.Command{
		Use:   "list [task-id]",
		Short: "Show recent activity, or one task's history",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var entries []activity.Entry
			var err error
			if len(args) == 1 {
				entries, err = a.activity.ByTask(cmd.Context(), args[0], limit)
			} else {
				entries, err = a.activity.Recent(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}
			if a.short {
				printShortEntries(os.Stdout, entries)
				return nil
			}
			return printJSON(entries)
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum entries")

	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check the activity hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.activity.VerifyChain(cmd.Context()); err != nil {
				return fmt.Errorf("chain broken: %w", err)
			}
			n, _ := a.activity.Count(cmd.Context())
			return printJSON(map[string]any{"status": "ok", "entries": n})
		},
	}
	cmd.AddCommand(list, verify)
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncStr(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func printShortTasks(w io.Writer, tasks []task.Task) {
	for _, t := range tasks {
		fmt.Fprintf(w, "%-8s  %-11s  %3d%%  %-8s  %s\n",
			truncStr(t.ID, 8), t.Status, t.Progress, t.Priority, truncStr(t.Title, 60))
	}
}

func printShortEntries(w io.Writer, entries []activity.Entry) {
	for _, e := range entries {
		content := ""
		if b, err := json.Marshal(e.Content); err == nil {
			content = string(b)
		}
		fmt.Fprintf(w, "%-8s  %-8s  %-24s  %s\n",
			e.Timestamp.Format("15:04:05"), truncStr(e.TaskID, 8), e.Type, truncStr(strings.TrimSpace(content), 80))
	}
}
