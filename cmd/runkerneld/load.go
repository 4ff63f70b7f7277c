package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load [location]",
		Short: "materialize a location's state",
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
			res, err := k.Load(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("txid=%s location=%s state=%s\n", res.TxID, res.Location, res.State)
			return nil
		},
	}
	return cmd
}
