package main

import (
	"fmt"

	"github.com/geoknoesis/rdf-models/store"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert <in> <out>",
	Short: "Copy a model's statements and prefixes into another resource",
	Long: `convert loads <in> and writes its statements to <out> in the format
chosen by the output extension or load.save_format. The output is left
untouched when its content would not change.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		in, err := parseArg(args[0])
		if err != nil {
			return err
		}
		out, err := parseArg(args[1])
		if err != nil {
			return err
		}
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(ctx)

		src, err := a.set.GetModel(ctx, in, true)
		if err != nil {
			return err
		}
		srcHandle, err := src.Handle(ctx)
		if err != nil {
			return err
		}
		quads, err := srcHandle.Query(ctx, store.Pattern{G: src.Graph()})
		if err != nil {
			return err
		}

		dst, err := a.set.CreateModel(ctx, out)
		if err != nil {
			return err
		}
		dstHandle, err := dst.Handle(ctx)
		if err != nil {
			return err
		}
		for _, q := range quads {
			if err := dstHandle.Add(ctx, q.Triple()); err != nil {
				return err
			}
		}
		for _, ns := range src.Namespaces() {
			dst.SetNamespace(ns.Prefix, ns.IRI)
		}

		written, err := dst.Save(ctx)
		if err != nil {
			return err
		}
		status := "unchanged"
		if written {
			status = "written"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d statements %s\n", dst.URI(), len(quads), status)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
}
