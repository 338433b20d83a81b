package storage

import (
	"context"
	"testing"
	"time"

	"synaptor/internal/model"
)

func sampleSnapshot(id string, created time.Time) NetworkSnapshot {
	return NetworkSnapshot{
		ID:           id,
		Network:      "ring",
		CreatedAt:    created,
		ResolutionMS: 0.1,
		MinDelayMS:   1.0,
		MaxDelayMS:   4.0,
		Connections: []model.ConnInfo{
			{Source: 1, Target: 2, Synapse: "static", Weight: 1.5, DelayMS: 1.0},
			{Source: 2, Target: 1, Synapse: "static", Weight: 0.5, DelayMS: 4.0},
		},
	}
}

func TestMemoryStoreSaveGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	snap := sampleSnapshot("s1", time.Unix(100, 0).UTC())
	if err := store.SaveSnapshot(ctx, snap); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.GetSnapshot(ctx, "s1")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if got.Network != "ring" || len(got.Connections) != 2 {
		t.Fatalf("unexpected snapshot: %+v", got)
	}

	// The stored copy is isolated from caller mutation.
	got.Connections[0].Weight = 99
	again, _, err := store.GetSnapshot(ctx, "s1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Connections[0].Weight != 1.5 {
		t.Fatalf("stored snapshot mutated: %+v", again.Connections[0])
	}

	if _, ok, err := store.GetSnapshot(ctx, "missing"); err != nil || ok {
		t.Fatalf("missing snapshot: ok=%v err=%v", ok, err)
	}

	if err := store.DeleteSnapshot(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := store.GetSnapshot(ctx, "s1"); ok {
		t.Fatal("snapshot survived delete")
	}
}

func TestMemoryStoreListOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	base := time.Unix(100, 0).UTC()
	for _, rec := range []struct {
		id  string
		at  time.Time
	}{
		{"c", base.Add(2 * time.Second)},
		{"a", base},
		{"b", base.Add(time.Second)},
	} {
		if err := store.SaveSnapshot(ctx, sampleSnapshot(rec.id, rec.at)); err != nil {
			t.Fatalf("save %s: %v", rec.id, err)
		}
	}

	infos, err := store.ListSnapshots(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("list returned %d snapshots, want 3", len(infos))
	}
	for i, want := range []string{"a", "b", "c"} {
		if infos[i].ID != want {
			t.Fatalf("list order at %d: got=%s want=%s", i, infos[i].ID, want)
		}
	}
	if infos[0].NumConnections != 2 {
		t.Fatalf("unexpected connection count: %+v", infos[0])
	}
}
