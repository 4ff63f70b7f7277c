package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/runkernel/kernel/internal/sandbox"
)

// demoClasses holds the handful of built-in ClassSources this thin CLI can
// deploy without a real source-to-ClassSource compiler. A full deployment
// wires its own compiler ahead of pkg/kernel.Deploy; this CLI exists only
// to exercise the kernel.
var demoClasses = map[string]func() *sandbox.ClassSource{
	"counter": func() *sandbox.ClassSource {
		return &sandbox.ClassSource{
			Name:   "Counter",
			Fields: map[string]sandbox.Value{"count": float64(0)},
			Methods: map[string]sandbox.Method{
				"increment": func(this sandbox.MethodThis, deps sandbox.Dependencies, args []sandbox.Value) (sandbox.Value, error) {
					cur, _ := this.Get("count")
					n, _ := cur.(float64)
					n++
					return nil, this.Set("count", n)
				},
			},
		}
	},
}

func deployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy [class]",
		Short: "deploy a built-in demo class and print its origin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			factory, ok := demoClasses[args[0]]
			if !ok {
				return fmt.Errorf("unknown demo class %q", args[0])
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			k, err := newKernel(ctx, cfg)
			if err != nil {
				return err
			}
			jig, err := k.Deploy(ctx, factory())
			if err != nil {
				return err
			}
			b, _ := jig.Snapshot()
			fmt.Println(b.Origin)
			return nil
		},
	}
	return cmd
}
