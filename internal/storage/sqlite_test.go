package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/GoSim-25-26J-441/paramsearch/pkg/models"
)

func TestSQLiteStoreTrialsAndBestRoundTrip(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "paramsearch.db")

	store := NewSQLiteStore(dbPath)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	for _, seq := range []int{2, 1, 3} {
		if err := store.SaveTrial(ctx, "run", sampleTrial(seq, float64(seq)+0.5)); err != nil {
			t.Fatalf("save trial %d: %v", seq, err)
		}
	}
	// upsert keeps one row per seq
	if err := store.SaveTrial(ctx, "run", sampleTrial(2, 42)); err != nil {
		t.Fatalf("resave trial: %v", err)
	}

	trials, err := store.ListTrials(ctx, "run")
	if err != nil {
		t.Fatalf("list trials: %v", err)
	}
	if len(trials) != 3 {
		t.Fatalf("expected 3 trials, got %d", len(trials))
	}
	if trials[0].Seq != 1 || trials[1].Fitness != 42 || trials[2].Assignment["a"] != 3 {
		t.Fatalf("unexpected trials %+v", trials)
	}

	best := models.BestResult{Fitness: 1.5, Artifact: "w2-9", Persisted: "out/1.5.csv", Assignment: models.Assignment{"a": 0.5, "r": 9}}
	if err := store.SaveBest(ctx, "run", best); err != nil {
		t.Fatalf("save best: %v", err)
	}
	got, ok, err := store.GetBest(ctx, "run")
	if err != nil || !ok {
		t.Fatalf("get best: ok=%v err=%v", ok, err)
	}
	if got.Fitness != 1.5 || got.Persisted != "out/1.5.csv" || got.Assignment["r"] != 9 {
		t.Fatalf("unexpected best %+v", got)
	}

	if _, ok, err := store.GetBest(ctx, "other"); err != nil || ok {
		t.Fatalf("expected no best for other run, ok=%v err=%v", ok, err)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "paramsearch.db")

	first := NewSQLiteStore(dbPath)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := first.SaveTrial(ctx, "run", sampleTrial(1, 7)); err != nil {
		t.Fatalf("save trial: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := NewSQLiteStore(dbPath)
	if err := second.Init(ctx); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	trials, err := second.ListTrials(ctx, "run")
	if err != nil {
		t.Fatalf("list trials: %v", err)
	}
	if len(trials) != 1 || trials[0].Fitness != 7 {
		t.Fatalf("unexpected trials after reopen %+v", trials)
	}
}

func TestSQLiteStoreRequiresPathAndInit(t *testing.T) {
	if err := NewSQLiteStore("").Init(context.Background()); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := NewSQLiteStore("x.db").ListTrials(context.Background(), "run"); err == nil {
		t.Fatal("expected error before init")
	}
}
