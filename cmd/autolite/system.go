package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/imagvfx/autolite"
	"github.com/spf13/cobra"
)

func newSystemCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "system",
		Short: "manage systems and their locks",
	}
	cmd.AddCommand(
		newSystemCreateCmd(a),
		newSystemReadCmd(a),
		newSystemSetCmd(a),
		newSystemDeleteCmd(a),
		newSystemListCmd(a),
	)
	for _, sc := range autolite.SystemCommands {
		cmd.AddCommand(newSystemExecCmd(a, sc))
	}
	return cmd
}

// systemScriptFlags are flags of the maintenance scripts.
var systemScriptFlags = []struct {
	name  string
	usage string
}{
	{"installer", "shell command installing the system"},
	{"cleaner", "shell command cleaning the system"},
	{"monitor", "shell command checking the system"},
	{"config", "shell command configuring the system"},
}

func newSystemCreateCmd(a *app) *cobra.Command {
	s := &autolite.System{}
	cmd := &cobra.Command{
		Use:   "create <name> <ip>",
		Short: "create a free system",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			s.Name, s.IP = args[0], args[1]
			err := a.systems.Create(s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
	cmd.Flags().StringVar(&s.Installer, "installer", "", systemScriptFlags[0].usage)
	cmd.Flags().StringVar(&s.Cleaner, "cleaner", "", systemScriptFlags[1].usage)
	cmd.Flags().StringVar(&s.Monitor, "monitor", "", systemScriptFlags[2].usage)
	cmd.Flags().StringVar(&s.Config, "config", "", systemScriptFlags[3].usage)
	cmd.Flags().StringVar(&s.Comment, "comment", "", "free text about the system")
	return cmd
}

func newSystemReadCmd(a *app) *cobra.Command {
	f := format{}
	cmd := &cobra.Command{
		Use:   "read <name>",
		Short: "print a system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			s, err := a.systems.Get(args[0])
			if err != nil {
				return err
			}
			if f.structured() {
				return f.dump(cmd.OutOrStdout(), s)
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
	addFormatFlags(cmd, &f, false)
	return cmd
}

func newSystemSetCmd(a *app) *cobra.Command {
	vals := make(map[string]*string)
	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "change fields of a system at once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			changed := func(name string) *string {
				if !cmd.Flags().Changed(name) {
					return nil
				}
				return vals[name]
			}
			u := autolite.SystemUpdater{
				Name:      args[0],
				IP:        changed("ip"),
				Installer: changed("installer"),
				Cleaner:   changed("cleaner"),
				Monitor:   changed("monitor"),
				Config:    changed("config"),
				Comment:   changed("comment"),
			}
			err := a.systems.Update(u)
			if err != nil {
				return err
			}
			s, err := a.systems.Get(u.Name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), s)
			return nil
		},
	}
	vals["ip"] = cmd.Flags().String("ip", "", "ip address of the system")
	for _, f := range systemScriptFlags {
		vals[f.name] = cmd.Flags().String(f.name, "", f.usage)
	}
	vals["comment"] = cmd.Flags().String("comment", "", "free text about the system")
	return cmd
}

func newSystemDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "delete a system, even if it is acquired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			return a.systems.Delete(args[0])
		},
	}
}

func newSystemListCmd(a *app) *cobra.Command {
	f := format{}
	var (
		fields []string
		long   bool
		mine   bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list systems",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			filter := autolite.SystemFilter{}
			if mine {
				caller, err := a.caller()
				if err != nil {
					return err
				}
				filter.User = &caller
			}
			systems, err := a.systems.List(filter)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if f.structured() {
				names := make([]string, len(systems))
				items := make([]interface{}, len(systems))
				for i, s := range systems {
					names[i] = s.Name
					items[i] = s
				}
				return f.dumpList(w, names, items)
			}
			cols := []string{"name", "user", "comment"}
			if long {
				cols = autolite.SystemFields
			} else if len(fields) != 0 {
				cols = make([]string, len(fields))
				for i, fd := range fields {
					cols[i] = strings.ToLower(fd)
				}
				if err := checkFields(cols, autolite.SystemFields); err != nil {
					return err
				}
			}
			records := make([]map[string]string, len(systems))
			for i, s := range systems {
				records[i] = s.Fields()
			}
			return printTable(w, cols, fieldRows(records, cols))
		},
	}
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "comma separated fields to print")
	cmd.Flags().BoolVarP(&long, "long", "l", false, "print all fields")
	cmd.Flags().BoolVar(&mine, "mine", false, "only systems acquired by you")
	cmd.MarkFlagsMutuallyExclusive("fields", "long")
	addFormatFlags(cmd, &f, true)
	return cmd
}

var systemCommandShorts = map[autolite.SystemCommand]string{
	autolite.SystemAcquire: "acquire a system for you",
	autolite.SystemRelease: "release a system you acquired",
	autolite.SystemInstall: "run the installer of a system",
	autolite.SystemClean:   "run the cleaner of a system",
	autolite.SystemMonitor: "run the monitor of a system, and exit with 1 if it fails",
	autolite.SystemConfig:  "run the config script of a system, and exit with 1 if it fails",
}

func newSystemExecCmd(a *app, sc autolite.SystemCommand) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   sc.String() + " <name>",
		Short: systemCommandShorts[sc],
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(); err != nil {
				return err
			}
			caller, err := a.caller()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			name := args[0]
			ok, err := a.systems.Execute(ctx, sc, name, caller, force)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s %s: not ok", name, sc)
			}
			if sc == autolite.SystemMonitor || sc == autolite.SystemConfig {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: ok\n", name, sc)
			}
			return nil
		},
	}
	if sc == autolite.SystemRelease {
		cmd.Flags().BoolVarP(&force, "force", "f", false, "release a system acquired by somebody else")
	}
	return cmd
}
