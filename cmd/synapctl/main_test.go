package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testSpecYAML = `
name: demo
ranks: 2
threads: 2
keep_source_table: true
populations:
  - name: pool
    size: 4
  - name: probe
    size: 1
    kind: recorder
projections:
  - source: pool
    target: pool
    rule: all_to_all
    synapse: static
    weights: [0.5]
    delays_ms: [1.5]
  - source: pool
    target: probe
    rule: all_to_all
    synapse: static
`

func writeTestSpec(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "demo.yaml")
	if err := os.WriteFile(path, []byte(testSpecYAML), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return path
}

func TestRunRejectsMissingAndUnknownCommands(t *testing.T) {
	if err := run(context.Background(), nil); err == nil || !strings.Contains(err.Error(), "missing command") {
		t.Fatalf("expected missing command error, got %v", err)
	}
	if err := run(context.Background(), []string{"bogus"}); err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestRunBuildCommand(t *testing.T) {
	args := []string{"build", "--spec", writeTestSpec(t)}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("build command: %v", err)
	}
}

func TestRunBuildRequiresSpec(t *testing.T) {
	if err := run(context.Background(), []string{"build"}); err == nil {
		t.Fatal("expected build without spec to fail")
	}
}

func TestRunQueryCommand(t *testing.T) {
	args := []string{
		"query",
		"--spec", writeTestSpec(t),
		"--sources", "1",
		"--synapse", "static",
	}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("query command: %v", err)
	}
}

func TestRunQueryRejectsBadNodeIDs(t *testing.T) {
	args := []string{"query", "--spec", writeTestSpec(t), "--sources", "1,zero"}
	if err := run(context.Background(), args); err == nil {
		t.Fatal("expected invalid node id error")
	}
}

func TestRunStatusCommand(t *testing.T) {
	args := []string{"status", "--spec", writeTestSpec(t), "--rank", "1"}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("status command: %v", err)
	}
}

func TestRunSnapshotCommand(t *testing.T) {
	args := []string{"snapshot", "--spec", writeTestSpec(t), "--store", "memory"}
	if err := run(context.Background(), args); err != nil {
		t.Fatalf("snapshot command: %v", err)
	}
}

func TestRunExportRequiresID(t *testing.T) {
	if err := run(context.Background(), []string{"export", "--store", "memory"}); err == nil {
		t.Fatal("expected export without id to fail")
	}
}

func TestRunListingCommands(t *testing.T) {
	for _, cmd := range []string{"models", "rules"} {
		if err := run(context.Background(), []string{cmd}); err != nil {
			t.Fatalf("%s command: %v", cmd, err)
		}
	}
}

func TestParseGIDs(t *testing.T) {
	gids, err := parseGIDs(" 1, 2,3")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(gids) != 3 || gids[0] != 1 || gids[2] != 3 {
		t.Fatalf("unexpected gids: %v", gids)
	}
	if _, err := parseGIDs("0"); err == nil {
		t.Fatal("expected zero id rejection")
	}
	if gids, err := parseGIDs(""); err != nil || gids != nil {
		t.Fatalf("empty input: gids=%v err=%v", gids, err)
	}
}
