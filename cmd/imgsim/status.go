package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/4thel00z/imgsim/internal"
	"github.com/spf13/cobra"
)

func NewStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show library status",
		Long:  `Show the active scope, how many images are embedded and whether the model is available.`,
		RunE:  makeStatusRunner(a),
	}
}

type libraryStatus struct {
	Scope      string `json:"scope"`
	Root       string `json:"root"`
	Database   string `json:"database"`
	Images     int    `json:"images"`
	Embedded   int    `json:"embedded"`
	Model      string `json:"model"`
	ModelReady bool   `json:"model_ready"`
	Device     string `json:"device"`
	Detected   string `json:"detected_device"`
}

func makeStatusRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		scopeHint, _ := cmd.Flags().GetString("scope")
		asJSON, _ := cmd.Flags().GetBool("json")

		// Counts come straight from the store; the index is never built here.
		scope, err := a.scope(scopeHint)
		if err != nil {
			return err
		}
		cfg, err := internal.LoadConfig(scope)
		if err != nil {
			return err
		}

		st := libraryStatus{
			Scope:    string(scope.Type),
			Root:     scope.Path,
			Database: scope.DatabasePath(cfg.Database),
			Device:   cfg.Runtime.Device,
			Detected: string(internal.DetectHardware()),
		}

		db, err := internal.NewSQLiteStore(cmd.Context(), st.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		if st.Images, st.Embedded, err = db.Count(cmd.Context()); err != nil {
			return err
		}

		if st.Model, err = internal.ResolveModelPath(cfg); err != nil {
			return err
		}
		_, statErr := os.Stat(st.Model)
		st.ModelReady = statErr == nil

		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Library:  %s (%s)\n", st.Root, st.Scope)
		fmt.Fprintf(out, "Database: %s\n", st.Database)
		fmt.Fprintf(out, "Images:   %d known, %d embedded\n", st.Images, st.Embedded)
		if st.ModelReady {
			fmt.Fprintf(out, "Model:    %s\n", st.Model)
		} else {
			fmt.Fprintf(out, "Model:    %s (missing, run 'imgsim model pull')\n", st.Model)
		}
		fmt.Fprintf(out, "Device:   %s (detected %s)\n", st.Device, st.Detected)
		return nil
	}
}
