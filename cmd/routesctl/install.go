package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func (a *app) newInstall() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Create the route tables if they do not exist",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			cfg, _, closer, err := a.load()
			if err != nil {
				return err
			}
			defer closer.Close()
			db, err := openSQL(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Install(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "route tables installed (%s)\n", db.Dialect())
			return nil
		},
	}
}

func (a *app) newUninstall() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "uninstall",
		Short: "Drop the route tables and every assignment in them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to drop route tables without --yes")
			}
			cmd.SilenceUsage = true
			cfg, _, closer, err := a.load()
			if err != nil {
				return err
			}
			defer closer.Close()
			db, err := openSQL(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Uninstall(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "route tables dropped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm dropping the tables")
	return cmd
}
