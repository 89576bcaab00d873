package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "read or write settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get [key]",
		Short: "print a setting, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := args
			if len(keys) == 0 {
				var err error
				keys, err = a.store.Keys()
				if err != nil {
					return err
				}
			}
			for _, k := range keys {
				v, err := a.store.Get(k)
				if err != nil {
					return err
				}
				if len(args) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, v)
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), v)
				}
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "write a setting to the user settings",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.store.Set(args[0], args[1])
		},
	})
	return cmd
}
