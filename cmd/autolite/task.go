package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/imagvfx/autolite"
	"github.com/imagvfx/autolite/lib/tail"
	"github.com/spf13/cobra"
)

func newTaskCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "manage tasks",
	}
	cmd.AddCommand(
		newTaskCreateCmd(a),
		newTaskReadCmd(a),
		newTaskSetCmd(a),
		newTaskDeleteCmd(a),
		newTaskListCmd(a),
		newTaskResetCmd(a),
		newTaskAbortCmd(a),
		newTaskRunCmd(a),
	)
	return cmd
}

// scheduleFlags are a schedule flag and its shortcuts.
type scheduleFlags struct {
	schedule   string
	daily      bool
	hourly     bool
	continuous bool
	never      bool
}

func addScheduleFlags(cmd *cobra.Command, f *scheduleFlags) {
	cmd.Flags().StringVar(&f.schedule, "schedule", "", "daily, hourly, continuous, never or <inherit>")
	cmd.Flags().BoolVar(&f.daily, "daily", false, "run once a day")
	cmd.Flags().BoolVar(&f.hourly, "hourly", false, "run once an hour")
	cmd.Flags().BoolVar(&f.continuous, "continuous", false, "run whenever the task is pending")
	cmd.Flags().BoolVar(&f.never, "never", false, "don't run by schedule")
	cmd.MarkFlagsMutuallyExclusive("schedule", "daily", "hourly", "continuous", "never")
}

// get returns the schedule set with the flags, or nil if none is set.
func (f *scheduleFlags) get() (*autolite.Schedule, error) {
	var s autolite.Schedule
	switch {
	case f.daily:
		s = autolite.ScheduleDaily
	case f.hourly:
		s = autolite.ScheduleHourly
	case f.continuous:
		s = autolite.ScheduleContinuous
	case f.never:
		s = autolite.ScheduleNever
	case f.schedule != "":
		var err error
		s, err = autolite.ParseSchedule(f.schedule)
		if err != nil {
			return nil, err
		}
	default:
		return nil, nil
	}
	return &s, nil
}

func newTaskCreateCmd(a *app) *cobra.Command {
	spec := autolite.TaskSpec{}
	sched := &scheduleFlags{}
	var resources string
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "create a pending task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			s, err := sched.get()
			if err != nil {
				return err
			}
			spec.Name = args[0]
			spec.Schedule = s
			spec.Resources = autolite.ParseResources(resources)
			t, err := a.tasks.Create(spec)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
	cmd.Flags().StringVar(&spec.Inherit, "inherit", "", "parent task to inherit schedule, email, and unset command and condition from")
	cmd.Flags().StringVar(&spec.Command, "command", "", "shell command to run")
	cmd.Flags().StringVar(&spec.Condition, "condition", "", "shell command which should exit with 0 before the task starts")
	cmd.Flags().StringVar(&spec.Email, "email", "", "comma separated recipients of state changes")
	cmd.Flags().StringVar(&resources, "resources", "", "space separated resource tags held while running")
	cmd.Flags().BoolVar(&spec.Once, "once", false, "delete the task after its first success")
	addScheduleFlags(cmd, sched)
	return cmd
}

func newTaskReadCmd(a *app) *cobra.Command {
	f := format{}
	cmd := &cobra.Command{
		Use:   "read <name>",
		Short: "print a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			t, err := a.tasks.Get(args[0])
			if err != nil {
				return err
			}
			if f.structured() {
				return f.dump(cmd.OutOrStdout(), t)
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
	addFormatFlags(cmd, &f, false)
	return cmd
}

func newTaskSetCmd(a *app) *cobra.Command {
	var parent, command, condition, email, resources string
	sched := &scheduleFlags{}
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "change fields of a task at once",
		Long: `Change fields of a task at once.

Use <inherit> as the value of command, condition or email
to take it from the parent task.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			u := autolite.TaskUpdater{Name: args[0]}
			flags := cmd.Flags()
			if flags.Changed("parent") {
				u.Parent = &parent
			}
			attr := func(name, v string) *autolite.Attr {
				if !flags.Changed(name) {
					return nil
				}
				at := autolite.ParseAttr(v)
				return &at
			}
			u.Command = attr("command", command)
			u.Condition = attr("condition", condition)
			u.Email = attr("email", email)
			if flags.Changed("resources") {
				r := autolite.ParseResources(resources)
				u.Resources = &r
			}
			s, err := sched.get()
			if err != nil {
				return err
			}
			u.Schedule = s
			err = a.tasks.Update(u)
			if err != nil {
				return err
			}
			t, err := a.tasks.Get(u.Name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), t)
			return nil
		},
	}
	cmd.Flags().StringVar(&parent, "parent", "", "parent task, empty to make it a root task")
	cmd.Flags().StringVar(&command, "command", "", "shell command to run")
	cmd.Flags().StringVar(&condition, "condition", "", "shell command which should exit with 0 before the task starts")
	cmd.Flags().StringVar(&email, "email", "", "comma separated recipients of state changes")
	cmd.Flags().StringVar(&resources, "resources", "", "space separated resource tags held while running")
	addScheduleFlags(cmd, sched)
	return cmd
}

func newTaskDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "delete a task, its subtasks are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			return a.tasks.Delete(args[0])
		},
	}
}

var (
	taskShortFields = []string{"name", "state", "schedule", "last"}
	taskLongFields  = []string{"name", "parent", "schedule", "state", "command", "condition", "resources", "email", "last"}
)

func newTaskListCmd(a *app) *cobra.Command {
	f := format{}
	var (
		filter    autolite.ListFilter
		state     string
		recursive bool
		long      bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list tasks",
		Long: `List tasks.

With --recursive, tasks are printed as trees under --ancestor,
or the whole forest, with a summary of subtask states.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if recursive {
				ls, err := a.tasks.Lineage(filter.Ancestor)
				if err != nil {
					return err
				}
				if f.structured() {
					return f.dump(w, ls)
				}
				printLineage(w, ls, long, 0)
				return nil
			}
			if state != "" {
				s, err := autolite.ParseTaskState(state)
				if err != nil {
					return err
				}
				filter.State = &s
			}
			tasks, err := a.tasks.List(filter)
			if err != nil {
				return err
			}
			if f.structured() {
				names := make([]string, len(tasks))
				items := make([]interface{}, len(tasks))
				for i, t := range tasks {
					names[i] = t.Name
					items[i] = t
				}
				return f.dumpList(w, names, items)
			}
			fields := taskShortFields
			if long {
				fields = taskLongFields
			}
			records := make([]map[string]string, len(tasks))
			for i, t := range tasks {
				records[i] = t.Fields()
			}
			return printTable(w, fields, fieldRows(records, fields))
		},
	}
	cmd.Flags().StringVar(&filter.Name, "name", "", "only the task with the name")
	cmd.Flags().StringVar(&filter.Ancestor, "ancestor", "", "only descendants of the task")
	cmd.Flags().StringVar(&state, "state", "", "only tasks in the state: pending, running or failed")
	cmd.Flags().StringSliceVar(&filter.Holding, "holding", nil, "only tasks holding any of the resource tags")
	cmd.Flags().StringSliceVar(&filter.NotHolding, "not-holding", nil, "skip tasks holding any of the resource tags")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "print task trees")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "print all fields")
	addFormatFlags(cmd, &f, true)
	return cmd
}

// printLineage prints task trees indented by their depth.
func printLineage(w io.Writer, ls []*autolite.Lineage, long bool, depth int) {
	for _, l := range ls {
		line := strings.Repeat("  ", depth)
		if long {
			line += l.Task.String()
		} else {
			line += fmt.Sprintf("%s: %s", l.Task.Name, l.Task.State)
		}
		if l.Summary != nil {
			line += " " + summaryString(l.Summary)
		}
		fmt.Fprintln(w, line)
		printLineage(w, l.Subtasks, long, depth+1)
	}
}

// summaryString represents a summary like "(3 subtasks: 2 pending, 1 failed)".
func summaryString(sum map[string]int) string {
	parts := make([]string, 0, len(autolite.TaskStates))
	for _, s := range autolite.TaskStates {
		if n := sum[s.String()]; n != 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, s))
		}
	}
	return fmt.Sprintf("(%d subtasks: %s)", sum["total"], strings.Join(parts, ", "))
}

func newTaskResetCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reset <name>",
		Short: "make a failed task pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			return a.tasks.Reset(args[0], force)
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "reset a task even if it is not failed")
	return cmd
}

func newTaskAbortCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "abort <name>",
		Short: "terminate a running task, and make it failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			return a.tasks.Abort(args[0], autolite.AbortOptions{
				Yes:     yes,
				Confirm: confirmer(cmd.InOrStdin(), cmd.OutOrStdout()),
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "don't ask for confirmation")
	return cmd
}

// confirmer asks a yes or no question on out, and reads the answer from in.
func confirmer(in io.Reader, out io.Writer) func(string) bool {
	return func(prompt string) bool {
		fmt.Fprintf(out, "%s [y/N] ", prompt)
		answer, _ := bufio.NewReader(in).ReadString('\n')
		answer = strings.ToLower(strings.TrimSpace(answer))
		return answer == "y" || answer == "yes"
	}
}

func newTaskRunCmd(a *app) *cobra.Command {
	var follow bool
	cmd := &cobra.Command{
		Use:   "run <name>",
		Short: "run a task now, and wait for it",
		Long: `Run a task now regardless of its schedule, and wait for it.

It exits with 1 when the task fails. One-shot tasks run only this way.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			name := args[0]
			t, err := a.tasks.Get(name)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			offset := tail.Size(t.Log)
			sv := autolite.NewSupervisor(a.tasks)
			started, err := sv.Start(ctx, name)
			if err != nil {
				return err
			}
			if !started {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: condition is not met\n", name)
				return nil
			}
			tailDone := make(chan error, 1)
			tailCtx, stopTail := context.WithCancel(context.Background())
			if follow && t.Log != "" {
				go func() {
					tailDone <- tail.Follow(tailCtx, t.Log, offset, cmd.OutOrStdout())
				}()
			} else {
				tailDone <- nil
			}
			state, err := sv.Wait(ctx, name, 100*time.Millisecond, a.cfg.TimeoutDuration())
			if err != nil {
				// interrupted. don't leave the command behind.
				sv.Terminate(name)
				sv.Wait(context.Background(), name, 100*time.Millisecond, 0)
			}
			stopTail()
			if terr := <-tailDone; terr != nil {
				a.log.Warnf("follow log: %v", terr)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", name, state)
			if state == autolite.TaskFailed {
				return fmt.Errorf("task %s failed", name)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "print the task's log while it runs")
	return cmd
}
