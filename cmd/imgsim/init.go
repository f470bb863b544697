package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/4thel00z/imgsim/internal"
	"github.com/spf13/cobra"
)

func NewInitCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize an image library",
		Long:  `Create a .imgsim directory with a default config and an empty embedding database.`,
		RunE:  makeInitRunner(a),
	}

	cmd.Flags().Bool("global", false, "Initialize global scope (~/.imgsim)")
	cmd.Flags().String("device", "", "Inference device to record in the config (auto|cuda|coreml|cpu)")
	return cmd
}

func makeInitRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		isGlobal, _ := cmd.Flags().GetBool("global")
		device, _ := cmd.Flags().GetString("device")

		var scope internal.Scope
		if isGlobal {
			scope = a.resolver.Global()
		} else {
			cwd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("get working directory: %w", err)
			}
			scope = internal.Scope{
				Type:     internal.ScopeLibrary,
				Path:     cwd,
				DataPath: filepath.Join(cwd, internal.DataDirName),
			}
		}

		if _, err := os.Stat(scope.DataPath); err == nil {
			return fmt.Errorf("already initialized at %s", scope.DataPath)
		}

		cfg := internal.DefaultConfig()
		if device != "" {
			d, err := internal.ParseDevice(device)
			if err != nil {
				return err
			}
			cfg.Runtime.Device = string(d)
		}

		if err := os.MkdirAll(scope.DataPath, 0755); err != nil {
			return fmt.Errorf("create data directory: %w", err)
		}
		if err := internal.SaveConfig(scope, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		db, err := internal.NewSQLiteStore(cmd.Context(), scope.DatabasePath(cfg.Database))
		if err != nil {
			return err
		}
		if err := db.Close(); err != nil {
			return fmt.Errorf("close database: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized image library at %s\n", scope.DataPath)
		return nil
	}
}
