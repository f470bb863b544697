package main

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func NewRootCmd(version string, a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "imgsim",
		Short:         "Find visually similar images in a local library",
		Long:          `Index an image collection with CLIP embeddings and search it by example image.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if a == nil {
				return
			}
			verbose, _ := cmd.Flags().GetBool("verbose")
			a.logger = newLogger(cmd.ErrOrStderr(), verbose)
			slog.SetDefault(a.logger)
		},
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}

	addPersistentFlags(rootCmd)

	if a != nil {
		addSubcommands(rootCmd, a)
	}

	return rootCmd
}

func addPersistentFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("scope", "", "Target scope (global|library)")
	cmd.PersistentFlags().Bool("json", false, "Output in JSON format")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug output to stderr")
}

func addSubcommands(root *cobra.Command, a *app) {
	root.AddCommand(
		NewInitCmd(a),
		NewIndexCmd(a),
		NewSimilarCmd(a),
		NewWatchCmd(a),
		NewStatusCmd(a),
		NewModelCmd(a),
	)
}
