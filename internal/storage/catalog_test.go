package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/thenexusengine/tne_vpaid/internal/vpaid"
)

const testCatalog = `
creatives:
  - id: preroll
    name: Preroll
    variant: linear
    skippable: true
    duration_seconds: 15
    ad_parameters: |
      {"videos":[{"url":"https://cdn.example.com/a.mp4","mimetype":"video/mp4"}]}
  - id: overlay
    variant: nonlinear
    click_through: https://advertiser.example
    ad_parameters: '{"videos":[{"url":"b.webm","mimetype":"video/webm"}]}'
  - id: retired
    status: archived
    ad_parameters: '{}'
`

func TestParseCatalog(t *testing.T) {
	cat, err := ParseCatalog([]byte(testCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog failed: %v", err)
	}
	ctx := context.Background()

	if cat.Len() != 3 {
		t.Errorf("Expected 3 entries, got %d", cat.Len())
	}

	c, err := cat.Get(ctx, "preroll")
	if err != nil || c == nil {
		t.Fatalf("Expected preroll, got %v, %v", c, err)
	}
	if !c.Skippable || c.DurationSeconds != 15 || c.Status != "active" {
		t.Errorf("Unexpected creative: %+v", c)
	}

	// Callers get copies
	c.Name = "changed"
	if again, _ := cat.Get(ctx, "preroll"); again.Name != "Preroll" {
		t.Error("Expected catalog entry to be unaffected by caller edits")
	}

	if c, _ := cat.Get(ctx, "retired"); c != nil {
		t.Error("Expected archived creative to be hidden")
	}
	if c, _ := cat.Get(ctx, "missing"); c != nil {
		t.Error("Expected nil for unknown creative")
	}

	all, _ := cat.List(ctx)
	if len(all) != 2 || all[0].ID != "preroll" || all[1].ID != "overlay" {
		t.Errorf("Expected [preroll overlay] in file order, got %d entries", len(all))
	}
}

func TestParseCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"malformed yaml", "creatives: [", nil},
		{"missing id", "creatives:\n  - ad_parameters: '{}'\n", nil},
		{"duplicate id", "creatives:\n  - id: a\n    ad_parameters: '{}'\n  - id: a\n    ad_parameters: '{}'\n", ErrCreativeExists},
		{"bad parameters", "creatives:\n  - id: a\n    ad_parameters: '[1'\n", vpaid.ErrCreativeParse},
		{"empty parameters", "creatives:\n  - id: a\n", vpaid.ErrCreativeParse},
		{"bad variant", "creatives:\n  - id: a\n    variant: overlay\n    ad_parameters: '{}'\n", ErrInvalidVariant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.data))
			if err == nil {
				t.Fatal("Expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creatives.yaml")
	if err := os.WriteFile(path, []byte(testCatalog), 0o644); err != nil {
		t.Fatalf("Failed to write catalog: %v", err)
	}

	cat, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if cat.Len() != 3 {
		t.Errorf("Expected 3 entries, got %d", cat.Len())
	}

	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing file")
	}
}

type recordingCreator struct {
	existing map[string]bool
	created  []string
	fail     error
}

func (r *recordingCreator) Create(_ context.Context, c *Creative) error {
	if r.fail != nil {
		return r.fail
	}
	if r.existing[c.ID] {
		return ErrCreativeExists
	}
	r.created = append(r.created, c.ID)
	return nil
}

func TestCatalog_Seed(t *testing.T) {
	cat, err := ParseCatalog([]byte(testCatalog))
	if err != nil {
		t.Fatalf("ParseCatalog failed: %v", err)
	}
	ctx := context.Background()

	store := &recordingCreator{existing: map[string]bool{"overlay": true}}
	n, err := cat.Seed(ctx, store)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if n != 1 || len(store.created) != 1 || store.created[0] != "preroll" {
		t.Errorf("Expected only preroll created, got %d %v", n, store.created)
	}

	failing := &recordingCreator{fail: errors.New("connection refused")}
	if _, err := cat.Seed(ctx, failing); err == nil {
		t.Error("Expected seed error")
	}
}
