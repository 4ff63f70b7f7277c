package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [location]",
		Short: "advance a location to its current spend tip",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			k, err := newKernel(ctx, cfg)
			if err != nil {
				return err
			}
			tip, err := k.Sync(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Println(tip)
			return nil
		},
	}
	return cmd
}
