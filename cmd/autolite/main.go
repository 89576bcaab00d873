package main

import (
	"fmt"
	"io"
	"os"

	"github.com/imagvfx/autolite"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "autolite",
		Short: "autolite runs scheduled shell tasks on a single host",
		Long: `autolite keeps tasks and systems in a sqlite database.

Tasks are shell commands scheduled daily, hourly or continuously.
Systems are shared machines an operator acquires before running
their maintenance scripts.

Examples:
  autolite task create backup --daily --command "make backup"
  autolite task create backup.verify --inherit backup --command "make verify"
  autolite serve
  autolite system acquire lab1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	root.PersistentFlags().CountVarP(&a.verbose, "verbose", "v", "print more logs, repeat for even more")
	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "config directory (default $AUTOLITE_CONFIG_DIR or ~/.autolite)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database path, overrides db_path setting")

	root.AddCommand(newTaskCmd(a))
	root.AddCommand(newSystemCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newAPICmd(a))
	root.AddCommand(newDBCmd(a))
	root.AddCommand(newConfigCmd(a))
	return root
}

// report prints the result of a command for the operator.
func report(w io.Writer, err error) {
	if err == nil {
		return
	}
	if autolite.IsWarning(err) {
		pterm.Warning.WithWriter(w).Println(err)
		return
	}
	pterm.Error.WithWriter(w).Println(err)
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{}
	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.Execute()
	a.close()
	report(stderr, err)
	return autolite.ExitCode(err)
}

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "autolite crashed: %v\n", r)
			os.Exit(1)
		}
	}()
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
