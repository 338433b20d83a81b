package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"synaptor/internal/model"
	"synaptor/internal/netspec"
	"synaptor/internal/storage"
	"synaptor/internal/synapse"
	synapi "synaptor/pkg/synaptor"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "build":
		return runBuild(ctx, args[1:])
	case "query":
		return runQuery(ctx, args[1:])
	case "status":
		return runStatus(ctx, args[1:])
	case "snapshot":
		return runSnapshot(ctx, args[1:])
	case "snapshots":
		return runSnapshots(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	case "models":
		return runModels(ctx, args[1:])
	case "rules":
		return runRules(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: synapctl <build|query|status|snapshot|snapshots|export|models|rules> [flags]", msg)
}

func newClient(storeKind, dbPath string) (*synapi.Client, error) {
	return synapi.New(synapi.Options{StoreKind: storeKind, DBPath: dbPath})
}

func buildFromSpec(ctx context.Context, client *synapi.Client, specPath string) (synapi.BuildSummary, error) {
	if specPath == "" {
		return synapi.BuildSummary{}, errors.New("spec path is required")
	}
	spec, err := netspec.Load(specPath)
	if err != nil {
		return synapi.BuildSummary{}, err
	}
	return client.Build(ctx, spec)
}

func parseGIDs(s string) ([]model.GlobalID, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]model.GlobalID, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil || n == 0 {
			return nil, fmt.Errorf("invalid node id: %q", part)
		}
		out = append(out, model.GlobalID(n))
	}
	return out, nil
}

func runBuild(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	specPath := fs.String("spec", "", "network spec YAML path")
	storeKind := fs.String("store", "", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := buildFromSpec(ctx, client, *specPath)
	if err != nil {
		return err
	}
	fmt.Printf("built network=%s ranks=%d threads=%d nodes=%d connections=%d delays=[%g, %g]ms\n",
		summary.Network, summary.Ranks, summary.Threads, summary.Nodes,
		summary.NumConnections, summary.MinDelayMS, summary.MaxDelayMS)
	return nil
}

func runQuery(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	specPath := fs.String("spec", "", "network spec YAML path")
	sources := fs.String("sources", "", "comma-separated source node ids")
	targets := fs.String("targets", "", "comma-separated target node ids")
	synapseModel := fs.String("synapse", "", "synapse model filter")
	label := fs.Int64("label", -1, "label filter (-1 disables)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient("", "")
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if _, err := buildFromSpec(ctx, client, *specPath); err != nil {
		return err
	}

	req := synapi.QueryRequest{Synapse: *synapseModel}
	if req.Sources, err = parseGIDs(*sources); err != nil {
		return err
	}
	if req.Targets, err = parseGIDs(*targets); err != nil {
		return err
	}
	if *label >= 0 {
		req.Label = synapse.Int(*label)
	}

	items, err := client.Query(req)
	if err != nil {
		return err
	}
	for _, item := range items {
		fmt.Printf("%d -> %d rank=%d thread=%d synapse=%s weight=%g delay=%gms\n",
			item.Info.Source, item.Info.Target, item.Rank, item.Info.Thread,
			item.Info.Synapse, item.Info.Weight, item.Info.DelayMS)
	}
	fmt.Printf("%d connections\n", len(items))
	return nil
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	specPath := fs.String("spec", "", "network spec YAML path")
	rank := fs.Int("rank", 0, "rank to report")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient("", "")
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if _, err := buildFromSpec(ctx, client, *specPath); err != nil {
		return err
	}

	rec, err := client.Status(model.Rank(*rank))
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func runSnapshot(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	specPath := fs.String("spec", "", "network spec YAML path")
	storeKind := fs.String("store", "", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}
	if _, err := buildFromSpec(ctx, client, *specPath); err != nil {
		return err
	}

	summary, err := client.Snapshot(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("snapshot id=%s network=%s connections=%d\n",
		summary.SnapshotID, summary.Network, summary.NumConnections)
	return nil
}

func runSnapshots(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("snapshots", flag.ContinueOnError)
	storeKind := fs.String("store", "", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "", "sqlite database path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	infos, err := client.Snapshots(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Printf("%s network=%s created=%s connections=%d\n",
			info.ID, info.Network, info.CreatedAt.Format("2006-01-02T15:04:05Z07:00"), info.NumConnections)
	}
	fmt.Printf("%d snapshots\n", len(infos))
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	storeKind := fs.String("store", "", "store backend: memory|sqlite")
	dbPath := fs.String("db-path", "", "sqlite database path")
	id := fs.String("id", "", "snapshot id")
	outPath := fs.String("out", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id == "" {
		return errors.New("snapshot id is required")
	}

	client, err := newClient(*storeKind, *dbPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	if err := client.Init(ctx); err != nil {
		return err
	}

	snap, err := client.GetSnapshot(ctx, *id)
	if err != nil {
		return err
	}
	data, err := storage.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if *outPath == "" {
		fmt.Println(string(data))
		return nil
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		return err
	}
	fmt.Printf("exported snapshot=%s to %s\n", *id, *outPath)
	return nil
}

func runModels(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := newClient("", "")
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	for _, name := range client.SynapseModels() {
		fmt.Println(name)
	}
	return nil
}

func runRules(_ context.Context, args []string) error {
	fs := flag.NewFlagSet("rules", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	client, err := newClient("", "")
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()
	for _, name := range client.ConnectionRules() {
		fmt.Println(name)
	}
	return nil
}
