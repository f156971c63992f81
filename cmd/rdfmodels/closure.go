package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var closureCmd = &cobra.Command{
	Use:   "closure <model>",
	Short: "Resolve and print the import closure of a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		u, err := parseArg(args[0])
		if err != nil {
			return err
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		m, err := a.set.GetModel(ctx, u, true)
		if err != nil {
			return err
		}
		mod, err := m.Closure(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "writable: %s\n", mod.Writable)
		fmt.Fprintln(out, "readable:")
		for _, r := range mod.Readable {
			fmt.Fprintf(out, "  %s\n", r)
		}
		if len(mod.Namespaces) > 0 {
			fmt.Fprintln(out, "namespaces:")
			for _, ns := range mod.Namespaces {
				fmt.Fprintf(out, "  %s: %s\n", ns.Prefix, ns.IRI)
			}
		}
		for _, model := range a.set.Models() {
			for _, d := range model.Errors() {
				fmt.Fprintf(out, "error: %s\n", d)
			}
			for _, d := range model.Warnings() {
				fmt.Fprintf(out, "warning: %s\n", d)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(closureCmd)
}
