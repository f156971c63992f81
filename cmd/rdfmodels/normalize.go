package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var normalizeCmd = &cobra.Command{
	Use:   "normalize <uri>...",
	Short: "Print the physical URI each argument maps to",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger, err := configureLogging(cfg.Log.Level)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
		conv, nc, err := newConverter(cfg, logger)
		if err != nil {
			return err
		}
		if nc != nil {
			defer nc.Close()
		}
		for _, arg := range args {
			u, err := parseArg(arg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", u, conv.Normalize(u))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(normalizeCmd)
}
