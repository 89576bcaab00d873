package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/imagvfx/autolite/sqlite"
	"github.com/spf13/cobra"
)

func newDBCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "manage the database",
	}
	cmd.AddCommand(newDBInitCmd(a))
	return cmd
}

func newDBInitCmd(a *app) *cobra.Command {
	var drop, yes bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "create the tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if drop && !yes {
				prompt := fmt.Sprintf("drop every task and system in %s?", a.cfg.DBPath)
				if !confirmer(cmd.InOrStdin(), cmd.OutOrStdout())(prompt) {
					return fmt.Errorf("drop is not confirmed")
				}
			}
			err := os.MkdirAll(filepath.Dir(a.cfg.DBPath), 0755)
			if err != nil {
				return err
			}
			db, err := sqlite.Open(a.cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()
			err = sqlite.Init(db, drop)
			if err != nil {
				return err
			}
			a.log.WithField("db", a.cfg.DBPath).Info("initialized")
			return nil
		},
	}
	cmd.Flags().BoolVar(&drop, "drop", false, "drop existing tables first")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "don't ask for confirmation of drop")
	return cmd
}
