package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/4thel00z/imgsim/internal"
)

func TestIndexSimilarStatus(t *testing.T) {
	dir, a := setupLibraryDir(t)

	if _, _, err := runCLI(t, a, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}

	writeTestPNG(t, filepath.Join(dir, "red.png"), color.NRGBA{R: 255, A: 255})
	writeTestPNG(t, filepath.Join(dir, "trips", "orange.png"), color.NRGBA{R: 200, G: 90, A: 255})
	writeTestPNG(t, filepath.Join(dir, "trips", "blue.png"), color.NRGBA{B: 255, A: 255})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}

	out, _, err := runCLI(t, a, "index", "--json")
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	var res indexResult
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("decode index output %q: %v", out, err)
	}
	if res.Scanned != 3 || len(res.Ingested) != 3 || len(res.Failed) != 0 {
		t.Errorf("unexpected index result %+v", res)
	}

	// A second run finds everything already embedded.
	out, _, err = runCLI(t, a, "index")
	if err != nil {
		t.Fatalf("second index: %v", err)
	}
	if !strings.Contains(out, "Indexed 0 images (3 skipped, 0 failed)") {
		t.Errorf("unexpected output %q", out)
	}

	query := filepath.Join(t.TempDir(), "query.png")
	writeTestPNG(t, query, color.NRGBA{R: 250, G: 5, A: 255})

	out, _, err = runCLI(t, a, "similar", query, "-n", "1", "--seed", "7", "--json")
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	var matches []struct {
		Path  string  `json:"path"`
		Score float32 `json:"score"`
	}
	if err := json.Unmarshal([]byte(out), &matches); err != nil {
		t.Fatalf("decode similar output %q: %v", out, err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if filepath.Base(matches[0].Path) != "red.png" {
		t.Errorf("closest match = %s, want red.png", matches[0].Path)
	}

	out, _, err = runCLI(t, a, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st libraryStatus
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status output %q: %v", out, err)
	}
	if st.Images != 3 || st.Embedded != 3 {
		t.Errorf("status counts = %d/%d, want 3/3", st.Images, st.Embedded)
	}
	if st.Scope != string(internal.ScopeLibrary) {
		t.Errorf("scope = %q, want library", st.Scope)
	}
	if st.ModelReady {
		t.Error("model must not be reported ready in an empty cache")
	}
}

func TestIndexReportsFailures(t *testing.T) {
	dir, a := setupLibraryDir(t)

	if _, _, err := runCLI(t, a, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	writeTestPNG(t, filepath.Join(dir, "good.png"), color.NRGBA{G: 255, A: 255})
	if err := os.WriteFile(filepath.Join(dir, "broken.png"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	out, errOut, err := runCLI(t, a, "index")
	if err == nil {
		t.Fatal("expected an error when an image fails")
	}
	if !strings.Contains(out, "Indexed 1 images (0 skipped, 1 failed)") {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.Contains(errOut, "broken.png") {
		t.Errorf("expected failure for broken.png on stderr, got %q", errOut)
	}
}

func TestStatusReadsCountsWithoutLoadingEmbeddings(t *testing.T) {
	dir, a := setupLibraryDir(t)

	if _, _, err := runCLI(t, a, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}

	ctx := context.Background()
	dbPath := filepath.Join(dir, internal.DataDirName, "images.db")
	store, err := internal.NewSQLiteStore(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.StoreEmbedding(ctx, "/lib/a.png", []float32{1, 0, 0}); err != nil {
		t.Fatal(err)
	}
	if err := store.AddImage(ctx, "/lib/b.png"); err != nil {
		t.Fatal(err)
	}
	store.Close()

	// A truncated blob cannot be decoded, so anything that loads the index fails.
	raw, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := raw.Exec(`UPDATE images SET embedding = x'010203' WHERE path = '/lib/a.png'`); err != nil {
		t.Fatal(err)
	}
	raw.Close()

	out, _, err := runCLI(t, a, "status", "--json")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st libraryStatus
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status output %q: %v", out, err)
	}
	if st.Images != 2 || st.Embedded != 1 {
		t.Errorf("status counts = %d/%d, want 2/1", st.Images, st.Embedded)
	}
	if filepath.Base(st.Database) != "images.db" {
		t.Errorf("database = %s, want images.db", st.Database)
	}
}

func TestIndexRequiresInit(t *testing.T) {
	_, a := setupLibraryDir(t)

	_, _, err := runCLI(t, a, "index")
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("expected not initialized error, got %v", err)
	}
}

func TestSimilarEmptyLibrary(t *testing.T) {
	dir, a := setupLibraryDir(t)

	if _, _, err := runCLI(t, a, "init"); err != nil {
		t.Fatalf("init: %v", err)
	}
	query := filepath.Join(dir, "query.png")
	writeTestPNG(t, query, color.NRGBA{R: 1, A: 255})

	out, _, err := runCLI(t, a, "similar", query)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if !strings.Contains(out, "No images indexed yet") {
		t.Errorf("unexpected output %q", out)
	}
}
