package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileProvider_FiltersAndLimits(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	data := `[
		{"title": "Solar panels explained", "url": "https://a.example", "snippet": "how they work"},
		{"title": "Wind", "url": "https://b.example", "snippet": "solar and wind compared"},
		{"title": "Cooking", "url": "https://c.example", "snippet": "recipes"},
		{"title": "", "url": "https://d.example", "snippet": "solar"}
	]`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	f := &FileProvider{Path: path}
	got, err := f.Search(context.Background(), "Solar", 10)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(got) != 2 || got[0].URL != "https://a.example" || got[1].URL != "https://b.example" {
		t.Fatalf("unexpected results: %+v", got)
	}
	if got[0].Source != "file" {
		t.Fatalf("expected source to be set, got %q", got[0].Source)
	}

	f.MatchAll = true
	got, err = f.Search(context.Background(), "nothing matches", 2)
	if err != nil || len(got) != 2 {
		t.Fatalf("expected 2 results with MatchAll, got %d, %v", len(got), err)
	}
}

func TestFileProvider_MissingFile(t *testing.T) {
	f := &FileProvider{Path: filepath.Join(t.TempDir(), "missing.json")}
	_, err := f.Search(context.Background(), "q", 1)
	var pe *ProviderError
	if !errors.As(err, &pe) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
