package heatmap

import (
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/GoSim-25-26J-441/paramsearch/internal/aggregate"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
)

func sampleResult(t *testing.T) aggregate.Result {
	t.Helper()
	trials := []models.Trial{
		{Assignment: models.Assignment{"a": 1, "r": 1}, Fitness: 10},
		{Assignment: models.Assignment{"a": 9, "r": 2}, Fitness: 500},
		{Assignment: models.Assignment{"a": 4, "r": 8}, Fitness: 120},
	}
	res, err := aggregate.Build(trials,
		aggregate.Axis{Name: "a", Low: 0, High: 10},
		aggregate.Axis{Name: "r", Low: 0, High: 10},
		aggregate.Grid{Width: 50, Height: 40})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return res
}

func TestRenderWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hot_cold.png")
	if err := Render(sampleResult(t), path, 500, 400); err != nil {
		t.Fatalf("Render: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	b := img.Bounds()
	if b.Dx() < 450 || b.Dx() > 550 || b.Dy() < 350 || b.Dy() > 450 {
		t.Fatalf("unexpected image size %v", b)
	}
}

func TestRenderErrors(t *testing.T) {
	res := sampleResult(t)
	if err := Render(res, filepath.Join(t.TempDir(), "x.png"), 0, 10); err == nil {
		t.Fatal("expected error for empty size")
	}
	if err := Render(aggregate.Result{}, filepath.Join(t.TempDir(), "x.png"), 10, 10); err == nil {
		t.Fatal("expected error for empty result")
	}
	if err := Render(res, filepath.Join(t.TempDir(), "x.svgz"), 10, 10); err == nil {
		t.Fatal("expected error for an unsupported format")
	}

	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := Render(res, filepath.Join(blocker, "x.png"), 10, 10); err == nil {
		t.Fatal("expected error when the output dir is a file")
	}
}
