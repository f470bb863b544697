package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/4thel00z/imgsim/internal"
	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

func NewWatchCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Watch for new images and index them",
		Long:  `Watch the library for added, changed and removed images and keep the embedding database in sync.`,
		Args:  cobra.MaximumNArgs(1),
		RunE:  makeWatchRunner(a),
	}

	cmd.Flags().Duration("debounce", 500*time.Millisecond, "Debounce window for batching changes")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

type watchAction int

const (
	watchIgnore watchAction = iota
	watchIngest
	watchRemove
)

func makeWatchRunner(a *app) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		scopeHint, _ := cmd.Flags().GetString("scope")
		debounce, _ := cmd.Flags().GetDuration("debounce")
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
		ctx := cmd.Context()

		var metrics *internal.Metrics
		if metricsAddr != "" {
			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m, err := internal.NewMetrics(reg)
			if err != nil {
				return fmt.Errorf("register metrics: %w", err)
			}
			metrics = m

			stop := serveMetrics(a, metricsAddr, reg)
			defer stop()
		}

		lib, err := a.open(ctx, scopeHint, openOptions{embedder: true, metrics: metrics})
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
			return fmt.Errorf("the global scope needs an explicit directory to watch")
		}

		ignore, err := internal.NewIgnoreMatcher(osfs.New("/"), root)
		if err != nil {
			return fmt.Errorf("read %s: %w", internal.IgnoreFilename, err)
		}

		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		defer watcher.Close()

		if err := addWatchDirs(watcher, root, ignore); err != nil {
			return fmt.Errorf("add watch dirs: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for images...\n", root)

		timer := time.NewTimer(0)
		if !timer.Stop() {
			<-timer.C
		}
		pending := make(map[string]watchAction)

		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Has(fsnotify.Create) {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						if err := addWatchDirs(watcher, event.Name, ignore); err != nil {
							a.logger.Warn("watch new directory", "path", event.Name, "error", err)
						}
						continue
					}
				}
				action := classifyEvent(event, lib.Scope.DataPath, ignore)
				if action == watchIgnore {
					continue
				}
				a.logger.Debug("image changed", "path", event.Name, "op", event.Op.String())
				pending[event.Name] = action
				timer.Reset(debounce)
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
			case <-timer.C:
				flushWatchBatch(cmd, lib, pending)
				clear(pending)
			}
		}
	}
}

func serveMetrics(a *app, addr string, reg *prometheus.Registry) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func flushWatchBatch(cmd *cobra.Command, lib *internal.Library, pending map[string]watchAction) {
	var ingest []string
	for path, action := range pending {
		switch action {
		case watchIngest:
			ingest = append(ingest, path)
		case watchRemove:
			if lib.DB == nil {
				continue
			}
			err := lib.DB.Delete(cmd.Context(), path)
			if err != nil && !errors.Is(err, internal.ErrNotFound) {
				fmt.Fprintf(cmd.ErrOrStderr(), "! %s: %v\n", path, err)
				continue
			}
			if err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "- %s\n", path)
			}
		}
	}
	slices.Sort(ingest)

	report := lib.Service.IngestBatch(cmd.Context(), ingest)
	for _, p := range report.Ingested {
		fmt.Fprintf(cmd.OutOrStdout(), "+ %s\n", p)
	}
	for _, f := range report.Failed {
		fmt.Fprintf(cmd.ErrOrStderr(), "! %v\n", f)
	}
}

func addWatchDirs(watcher *fsnotify.Watcher, root string, ignore *internal.IgnoreMatcher) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}

		if info.IsDir() {
			base := filepath.Base(path)
			if path != root && (strings.HasPrefix(base, ".") || ignore.Match(path, true)) {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
}

func classifyEvent(event fsnotify.Event, dataPath string, ignore *internal.IgnoreMatcher) watchAction {
	if strings.HasPrefix(event.Name, dataPath+string(filepath.Separator)) || event.Name == dataPath {
		return watchIgnore
	}
	if !internal.IsSupportedImage(event.Name) || ignore.Match(event.Name, false) {
		return watchIgnore
	}

	switch {
	case event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename):
		return watchRemove
	case event.Has(fsnotify.Create) || event.Has(fsnotify.Write):
		return watchIngest
	default:
		return watchIgnore
	}
}
