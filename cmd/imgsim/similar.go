package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/4thel00z/imgsim/internal"
	"github.com/spf13/cobra"
)

func NewSimilarCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar <image>",
		Short: "Find images similar to an example",
		Long: `Embed the example image and draw matches from the closest fifth of the library.
Repeated runs may return different matches; pass --seed for a fixed draw.`,
		Args: cobra.ExactArgs(1),
		RunE: makeSimilarRunner(a),
	}

	cmd.Flags().IntP("number", "n", 0, "Maximum results (default from config)")
	cmd.Flags().Uint64("seed", 0, "Seed for sampling the candidate pool")
	return cmd
}

func makeSimilarRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		scopeHint, _ := cmd.Flags().GetString("scope")
		asJSON, _ := cmd.Flags().GetBool("json")
		limit, _ := cmd.Flags().GetInt("number")

		opts := openOptions{embedder: true}
		if cmd.Flags().Changed("seed") {
			seed, _ := cmd.Flags().GetUint64("seed")
			opts.seed = &seed
		}

		query, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolve %s: %w", args[0], err)
		}

		lib, err := a.open(cmd.Context(), scopeHint, opts)
		if err != nil {
			return err
		}
		defer lib.Close()

		if limit <= 0 {
			limit = lib.Config.Index.TopN
		}

		matches, err := lib.Service.FindSimilar(cmd.Context(), query, limit)
		if err != nil {
			return fmt.Errorf("find similar: %w", err)
		}

		if asJSON {
			return outputMatchesJSON(cmd, matches)
		}

		if len(matches) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No images indexed yet. Run 'imgsim index' first.")
			return nil
		}
		for _, m := range matches {
			fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s\n", m.Score, m.ID)
		}
		return nil
	}
}

func outputMatchesJSON(cmd *cobra.Command, matches []internal.Match) error {
	out := make([]map[string]any, 0, len(matches))
	for _, m := range matches {
		out = append(out, map[string]any{
			"path":  m.ID,
			"score": m.Score,
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
