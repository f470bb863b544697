package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/4thel00z/imgsim/internal"
	"github.com/spf13/cobra"
)

func NewIndexCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Embed every image below a directory",
		Long: `Scan a directory for images and store their embeddings in the library.
Images that already have an embedding are skipped unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: makeIndexRunner(a),
	}

	cmd.Flags().Bool("force", false, "Re-embed images that are already indexed")
	cmd.Flags().Int("batch-size", 0, "Images per inference call (default from config)")
	return cmd
}

type indexResult struct {
	Scanned  int               `json:"scanned"`
	Skipped  int               `json:"skipped"`
	Ingested []string          `json:"ingested"`
	Failed   map[string]string `json:"failed,omitempty"`
}

func makeIndexRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		scopeHint, _ := cmd.Flags().GetString("scope")
		asJSON, _ := cmd.Flags().GetBool("json")
		force, _ := cmd.Flags().GetBool("force")
		batchSize, _ := cmd.Flags().GetInt("batch-size")
		ctx := cmd.Context()

		lib, err := a.open(ctx, scopeHint, openOptions{embedder: true})
		if err != nil {
			return err
		}
		defer lib.Close()

		root := lib.Scope.Path
		if len(args) == 1 {
			if root, err = filepath.Abs(args[0]); err != nil {
				return fmt.Errorf("resolve %s: %w", args[0], err)
			}
		} else if lib.Scope.Type == internal.ScopeGlobal {
			return fmt.Errorf("the global scope needs an explicit directory to index")
		}

		paths, err := internal.NewScanner(nil).Scan(ctx, root)
		if err != nil {
			return fmt.Errorf("scan %s: %w", root, err)
		}

		pending, skipped, err := pendingImages(cmd, lib, paths, force)
		if err != nil {
			return err
		}

		svc := lib.Service
		if batchSize > 0 {
			svc = internal.NewSearchService(lib.Embedder, lib.Service.Index(), lib.Store,
				internal.WithLogger(a.logger), internal.WithBatchSize(batchSize))
		}
		report := svc.IngestBatch(ctx, pending)

		res := indexResult{Scanned: len(paths), Skipped: skipped, Ingested: report.Ingested}
		if len(report.Failed) > 0 {
			res.Failed = make(map[string]string, len(report.Failed))
			for _, f := range report.Failed {
				res.Failed[f.Path] = f.Err.Error()
			}
		}

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
		} else {
			for _, f := range report.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "failed: %v\n", f)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d images (%d skipped, %d failed) under %s\n",
				len(report.Ingested), skipped, len(report.Failed), root)
		}

		if len(report.Failed) > 0 {
			return fmt.Errorf("%d of %d images could not be indexed", len(report.Failed), len(pending))
		}
		return nil
	}
}

// pendingImages registers every scanned path and returns those still lacking an embedding.
func pendingImages(cmd *cobra.Command, lib *internal.Library, paths []string, force bool) ([]string, int, error) {
	if lib.DB == nil {
		return paths, 0, nil
	}

	pending := make([]string, 0, len(paths))
	skipped := 0
	for _, p := range paths {
		if err := lib.DB.AddImage(cmd.Context(), p); err != nil {
			return nil, 0, err
		}
		if !force {
			has, err := lib.DB.HasEmbedding(cmd.Context(), p)
			if err != nil {
				return nil, 0, err
			}
			if has {
				skipped++
				continue
			}
		}
		pending = append(pending, p)
	}
	return pending, skipped, nil
}
