package main

import (
	"encoding/json"
	"fmt"

	"github.com/4thel00z/imgsim/internal"
	"github.com/spf13/cobra"
)

func NewModelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Manage the embedding model",
	}

	cmd.AddCommand(
		newModelPullCmd(a),
		newModelInspectCmd(a),
	)
	return cmd
}

func newModelPullCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Download the configured ONNX model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			force, _ := cmd.Flags().GetBool("force")

			cfg, err := internal.LoadConfig(a.resolver.Resolve(scopeHint))
			if err != nil {
				return err
			}
			cacheDir, err := internal.DefaultCacheDir()
			if err != nil {
				return fmt.Errorf("model cache dir: %w", err)
			}

			errOut := cmd.ErrOrStderr()
			progress := func(written, total int64) {
				if total > 0 {
					fmt.Fprintf(errOut, "\r%5.1f%%  %d/%d MB", float64(written)*100/float64(total), written>>20, total>>20)
				} else {
					fmt.Fprintf(errOut, "\r%d MB", written>>20)
				}
			}

			path, err := internal.NewModelFetcher(cacheDir).Fetch(cmd.Context(), internal.FetchRequest{
				URL:      cfg.Model.URL,
				Filename: cfg.Model.File,
				SHA256:   cfg.Model.SHA256,
				Force:    force,
			}, progress)
			fmt.Fprintln(errOut)
			if err != nil {
				return fmt.Errorf("pull model: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Model ready at %s\n", path)
			return nil
		},
	}

	cmd.Flags().Bool("force", false, "Download even if the model is already cached")
	return cmd
}

func newModelInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [model.onnx]",
		Short: "List the inputs and outputs of a model graph",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopeHint, _ := cmd.Flags().GetString("scope")
			asJSON, _ := cmd.Flags().GetBool("json")

			cfg, err := internal.LoadConfig(a.resolver.Resolve(scopeHint))
			if err != nil {
				return err
			}

			modelPath := ""
			if len(args) == 1 {
				modelPath = args[0]
			} else if modelPath, err = internal.ResolveModelPath(cfg); err != nil {
				return err
			}

			inputs, outputs, err := internal.InspectModel(cfg.Runtime.LibraryPath, modelPath)
			if err != nil {
				return fmt.Errorf("inspect %s: %w", modelPath, err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"model":   modelPath,
					"inputs":  inputs,
					"outputs": outputs,
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Model: %s\n", modelPath)
			printTensorInfos(cmd, "Inputs", inputs)
			printTensorInfos(cmd, "Outputs", outputs)
			return nil
		},
	}
}

func printTensorInfos(cmd *cobra.Command, title string, infos []internal.TensorInfo) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", title)
	for _, info := range infos {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-16s %-8s %v\n", info.Name, info.DataType, info.Shape)
	}
}
