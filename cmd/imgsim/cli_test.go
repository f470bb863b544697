package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/4thel00z/imgsim/internal"
)

// colorEmbedder embeds an image as its mean RGB colour.
type colorEmbedder struct {
	closed bool
}

func (e *colorEmbedder) Encode(_ context.Context, path string) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, err
	}

	var r, g, b, n float64
	bounds := img.Bounds()
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr)
			g += float64(cg)
			b += float64(cb)
			n++
		}
	}
	return []float32{float32(r / n / 0xffff), float32(g / n / 0xffff), float32(b / n / 0xffff)}, nil
}

func (e *colorEmbedder) EncodeBatch(ctx context.Context, paths []string) ([][]float32, error) {
	out := make([][]float32, 0, len(paths))
	for _, p := range paths {
		vec, err := e.Encode(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, nil
}

func (e *colorEmbedder) Dimension() int { return 3 }

func (e *colorEmbedder) Device() string { return "test" }

func (e *colorEmbedder) Close() error {
	e.closed = true
	return nil
}

// setupLibraryDir moves into a fresh directory with an isolated HOME and cache.
func setupLibraryDir(t *testing.T) (string, *app) {
	t.Helper()

	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	origWd, _ := os.Getwd()
	t.Cleanup(func() { _ = os.Chdir(origWd) })
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}

	a := newApp()
	a.openEmbedder = func(*internal.Config, *slog.Logger, *internal.Metrics) (internal.Embedder, error) {
		return &colorEmbedder{}, nil
	}
	return dir, a
}

func runCLI(t *testing.T, a *app, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCmd("test", a)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func writeTestPNG(t *testing.T, path string, c color.Color) {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, c)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}
