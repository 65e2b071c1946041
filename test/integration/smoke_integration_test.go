//go:build integration
// +build integration

package integration_test

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/GoSim-25-26J-441/paramsearch/internal/app"
	"github.com/GoSim-25-26J-441/paramsearch/internal/storage"
	"github.com/GoSim-25-26J-441/paramsearch/pkg/config"
)

// swarmScript moves node 1 from (a, r) towards node 0 over two seconds and
// writes the positions in the trace format the scorer reads
const swarmScript = `#!/bin/sh
out=""
a=1
r=1
for arg in "$@"; do
  case "$arg" in
    --positionsFile=*) out="${arg#--positionsFile=}" ;;
    --a=*) a="${arg#--a=}" ;;
    --r=*) r="${arg#--r=}" ;;
  esac
done
sleep 0.02
{
  echo "time,node,x,y"
  echo "0,0,0,0"
  echo "0,1,$a,$r"
  echo "0,2,0,3"
  echo "1,1,$r,0"
  echo "2,1,3,0"
  echo "duration,2"
} > "$out"
`

func writeSwarmSimulator(t *testing.T) string {
	t.Helper()
	repo := t.TempDir()
	bin := filepath.Join(repo, "build", "scratch", "non-ideal")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bin, "non-ideal"), []byte(swarmScript), 0o755); err != nil {
		t.Fatalf("write simulator: %v", err)
	}
	return repo
}

// loadTestConfig loads the shipped config and points it at a fake simulator
// and temporary output locations
func loadTestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfgPath := filepath.Join("..", "..", "config", "config.yaml")
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		t.Fatalf("LoadConfig(%s) failed: %v", cfgPath, err)
	}

	repo := writeSwarmSimulator(t)
	out := t.TempDir()
	cfg.Seed = 7
	cfg.Workers = 4
	cfg.MaxEvaluations = 40
	cfg.Simulator.RepoPath = repo
	cfg.Simulator.WorkDir = filepath.Join(repo, "work")
	cfg.Simulator.BaseArgs = []string{"--duration=2"}
	cfg.Simulator.LaunchRatePerSec = 0
	cfg.Output.Dir = out
	cfg.Storage.Path = filepath.Join(out, "paramsearch.db")
	cfg.Status.HTTPAddr = ""
	cfg.Status.GRPCAddr = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config invalid after overrides: %v", err)
	}
	return cfg
}

func TestIntegration_SearchWritesHeatmapAndJournal(t *testing.T) {
	cfg := loadTestConfig(t)

	search, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	summary, err := search.Run(context.Background())
	if cerr := search.Close(); cerr != nil {
		t.Fatalf("Close: %v", cerr)
	}
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if summary.Trials != 40 {
		t.Fatalf("expected 40 trials, got %d", summary.Trials)
	}
	if summary.Best == nil || summary.Best.Persisted == "" {
		t.Fatalf("expected a persisted best result, got %+v", summary.Best)
	}

	f, err := os.Open(summary.Heatmap)
	if err != nil {
		t.Fatalf("open heatmap: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decode heatmap: %v", err)
	}
	if b := img.Bounds(); b.Dx() < 400 || b.Dy() < 300 {
		t.Fatalf("unexpected heatmap size %v", b)
	}

	entries, err := os.ReadDir(cfg.Simulator.WorkDir)
	if err != nil {
		t.Fatalf("read work dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected scored artifacts to be removed, found %d", len(entries))
	}

	store := storage.NewSQLiteStore(cfg.Storage.Path)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	defer store.Close()
	trials, err := store.ListTrials(context.Background(), cfg.RunID)
	if err != nil {
		t.Fatalf("ListTrials: %v", err)
	}
	if len(trials) != 40 {
		t.Fatalf("expected 40 journaled trials, got %d", len(trials))
	}
	best, ok, err := store.GetBest(context.Background(), cfg.RunID)
	if err != nil || !ok {
		t.Fatalf("GetBest: ok=%v err=%v", ok, err)
	}
	if best.Fitness != summary.Best.Fitness {
		t.Fatalf("journaled best %v differs from summary %v", best.Fitness, summary.Best.Fitness)
	}
}
