// Command snapshot converts, prepares and moves route graph snapshots between
// JSON, gob and Postgres.
//
//	snapshot convert -in graph.json -out graph.gob [-prepare] [-benchmarks b.yaml]
//	snapshot import  -in graph.gob -db postgres://...
//	snapshot export  -db postgres://... -out graph.gob
//	snapshot stats   -in graph.gob
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"globalroute/internal/graph"
	"globalroute/internal/logging"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	logger, err := logging.New(logging.Config{Level: envOr("LOG_LEVEL", "info"), Format: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "convert":
		err = convert(args, logger)
	case "import":
		err = importGraph(ctx, args, logger)
	case "export":
		err = exportGraph(ctx, args, logger)
	case "stats":
		err = stats(args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal(cmd+" failed", zap.Error(err))
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: snapshot <convert|import|export|stats> [flags]")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func convert(args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	in := fs.String("in", "", "input snapshot (.json or .gob)")
	out := fs.String("out", "", "output snapshot (.json or .gob)")
	prepare := fs.Bool("prepare", false, "recompute link time and price from distance")
	benchPath := fs.String("benchmarks", "", "YAML file with mode benchmarks (implies -prepare)")
	scale := fs.Float64("scale", graph.DefaultScale, "normalization scale")
	_ = fs.Parse(args)
	if *in == "" || *out == "" {
		return errors.New("-in and -out are required")
	}

	start := time.Now()
	s, err := readSnapshot(*in)
	if err != nil {
		return err
	}
	var g *graph.Graph
	if *prepare || *benchPath != "" {
		bench, err := loadBenchmarks(*benchPath)
		if err != nil {
			return err
		}
		g, err = graph.PrepareSnapshot(s, bench, *scale)
		if err != nil {
			return err
		}
	} else if g, err = graph.FromSnapshot(s); err != nil {
		return err
	}
	if err := graph.SaveFile(*out, g); err != nil {
		return fmt.Errorf("write %s: %w", *out, err)
	}
	logger.Info("snapshot written", zap.String("in", *in), zap.String("out", *out),
		zap.Int("locations", g.Len()), zap.Int("links", g.LinkCount()), zap.Duration("took", time.Since(start)))
	return nil
}

func importGraph(ctx context.Context, args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	in := fs.String("in", "", "input snapshot (.json or .gob)")
	dsn := fs.String("db", os.Getenv("DATABASE_URL"), "Postgres connection string")
	_ = fs.Parse(args)
	if *in == "" || *dsn == "" {
		return errors.New("-in and -db are required")
	}
	g, err := graph.LoadFile(*in)
	if err != nil {
		return err
	}
	pg, err := graph.NewPostgres(*dsn)
	if err != nil {
		return err
	}
	defer func() { _ = pg.Close() }()
	if err := pg.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := pg.Save(ctx, g); err != nil {
		return err
	}
	logger.Info("graph imported", zap.Int("locations", g.Len()), zap.Int("links", g.LinkCount()))
	return nil
}

func exportGraph(ctx context.Context, args []string, logger *zap.Logger) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "", "output snapshot (.json or .gob)")
	dsn := fs.String("db", os.Getenv("DATABASE_URL"), "Postgres connection string")
	_ = fs.Parse(args)
	if *out == "" || *dsn == "" {
		return errors.New("-out and -db are required")
	}
	pg, err := graph.NewPostgres(*dsn)
	if err != nil {
		return err
	}
	defer func() { _ = pg.Close() }()
	g, err := pg.Load(ctx)
	if err != nil {
		return err
	}
	if err := graph.SaveFile(*out, g); err != nil {
		return err
	}
	logger.Info("graph exported", zap.String("out", *out), zap.Int("locations", g.Len()), zap.Int("links", g.LinkCount()))
	return nil
}

func stats(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	in := fs.String("in", "", "input snapshot (.json or .gob)")
	_ = fs.Parse(args)
	if *in == "" {
		return errors.New("-in is required")
	}
	g, err := graph.LoadFile(*in)
	if err != nil {
		return err
	}
	byMode := map[graph.Mode]int{}
	for _, l := range g.Links() {
		byMode[l.Mode]++
	}
	n := g.Norm()
	fmt.Printf("locations: %d\nlinks:     %d\n", g.Len(), g.LinkCount())
	for _, m := range graph.Modes {
		fmt.Printf("  %-5s %d\n", m, byMode[m])
	}
	fmt.Printf("time:  %.3f .. %.3f\nprice: %.3f .. %.3f\nscale: %.0f\n", n.TimeMin, n.TimeMax, n.PriceMin, n.PriceMax, n.Scale)
	return nil
}

func readSnapshot(path string) (*graph.Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return graph.Decode(bufio.NewReader(f), graph.FormatFromPath(path))
}

// loadBenchmarks overlays a YAML file on the default benchmarks.
func loadBenchmarks(path string) (graph.Benchmarks, error) {
	bench := graph.DefaultBenchmarks()
	if path == "" {
		return bench, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return bench, err
	}
	if err := yaml.Unmarshal(b, &bench); err != nil {
		return bench, fmt.Errorf("parse benchmarks: %w", err)
	}
	return bench, nil
}
