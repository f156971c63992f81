package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importsCmd = &cobra.Command{
	Use:   "imports <model>",
	Short: "List the owl:imports a model declares",
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
		imports, err := m.Imports(ctx)
		if err != nil {
			return err
		}
		for _, imp := range imports {
			fmt.Fprintln(cmd.OutOrStdout(), imp)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importsCmd)
}
