// Package main provides the optimops CLI.
package main

import (
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"os"
	"slices"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/optimops/internal/serialization"
	"github.com/born-ml/optimops/optim"
	"github.com/born-ml/optimops/tensor"
)

const version = "v0.1.0-dev"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if len(os.Args) < 2 {
		usage()
		return
	}
	switch os.Args[1] {
	case "version":
		fmt.Printf("optimops %s\n", version)
	case "bench":
		cfg, err := parseBench(os.Args[2:])
		if err != nil {
			logger.Error("invalid arguments", "err", err)
			os.Exit(2)
		}
		if err := bench(cfg, logger); err != nil {
			logger.Error("bench failed", "err", err)
			os.Exit(1)
		}
	case "inspect":
		if len(os.Args) != 3 {
			usage()
			os.Exit(2)
		}
		if err := inspect(os.Args[2]); err != nil {
			logger.Error("inspect failed", "path", os.Args[2], "err", err)
			os.Exit(1)
		}
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Println("optimops - optimizer update operators for dense and row-sparse tensors")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version                       Show version")
	fmt.Println("  bench [rows] [cols] [touched] Time dense vs row-sparse SGD momentum")
	fmt.Println("  inspect <file.safetensors>    List the tensors in a parameter file")
}

// inspect prints the metadata and tensors of a parameter file.
func inspect(path string) error {
	arrays, meta, err := serialization.ReadFile(path)
	if err != nil {
		return err
	}
	for _, k := range slices.Sorted(maps.Keys(meta)) {
		fmt.Printf("meta %s=%s\n", k, meta[k])
	}
	for _, name := range slices.Sorted(maps.Keys(arrays)) {
		a := arrays[name]
		line := fmt.Sprintf("%-24s %-10s %-8s %v", name, a.Storage(), a.DType(), a.Shape())
		if rs := a.RowSparse(); rs != nil {
			if rs.StorageInitialized() {
				line += fmt.Sprintf(" rows=%d/%d", rs.NumStoredRows(), a.Shape().Rows())
			} else {
				line += " uninitialized"
			}
		}
		fmt.Println(line)
	}
	return nil
}

type benchConfig struct {
	rows, cols, touched int
}

func parseBench(args []string) (benchConfig, error) {
	cfg := benchConfig{rows: 100000, cols: 64, touched: 512}
	dst := []*int{&cfg.rows, &cfg.cols, &cfg.touched}
	for i, arg := range args {
		if i >= len(dst) {
			return cfg, fmt.Errorf("unexpected argument %q", arg)
		}
		v, err := strconv.Atoi(arg)
		if err != nil || v <= 0 {
			return cfg, fmt.Errorf("argument %d: want a positive integer, got %q", i+1, arg)
		}
		*dst[i] = v
	}
	if cfg.touched > cfg.rows {
		return cfg, fmt.Errorf("touched rows %d exceed table rows %d", cfg.touched, cfg.rows)
	}
	return cfg, nil
}

// bench runs one SGD momentum step over the same table twice: once with a
// dense gradient and once with the equivalent row-sparse gradient.
func bench(cfg benchConfig, logger *slog.Logger) error {
	shape := tensor.Shape{cfg.rows, cfg.cols}
	rng := rand.New(rand.NewPCG(1, 2))

	table := make([]float32, shape.NumElements())
	for i := range table {
		table[i] = rng.Float32()*2 - 1
	}

	stride := cfg.rows / cfg.touched
	indices := make([]int64, cfg.touched)
	touched := make(map[int]bool, cfg.touched)
	for i := range indices {
		indices[i] = int64(i * stride)
		touched[i*stride] = true
	}
	rowValues := make([]float32, cfg.touched*cfg.cols)
	for i := range rowValues {
		rowValues[i] = rng.Float32()*2 - 1
	}

	engine := optim.NewEngine(optim.EngineConfig{Logger: logger})
	p := optim.NewSGDMomParam(0.01, 0.9)

	// Dense path.
	w, err := tensor.FromSlice(table, shape)
	if err != nil {
		return err
	}
	g, err := tensor.Zeros(shape, tensor.Float32)
	if err != nil {
		return err
	}
	gd := g.AsFloat32()
	for i, r := range indices {
		copy(gd[int(r)*cfg.cols:(int(r)+1)*cfg.cols], rowValues[i*cfg.cols:(i+1)*cfg.cols])
	}
	mom, err := tensor.Zeros(shape, tensor.Float32)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := engine.SGDMomUpdate(p, w, g, mom, optim.WriteInplace, w); err != nil {
		return err
	}
	denseTime := time.Since(start)

	// Row-sparse path with lazily materialized momentum.
	sw, err := tensor.FromSlice(table, shape)
	if err != nil {
		return err
	}
	swr, err := tensor.AllRows(sw)
	if err != nil {
		return err
	}
	values, err := tensor.FromSlice(rowValues, shape.WithRows(cfg.touched))
	if err != nil {
		return err
	}
	sg, err := tensor.RowSparseFromRows(shape, indices, values)
	if err != nil {
		return err
	}
	smom, err := tensor.NewRowSparse(shape, tensor.Float32, tensor.CPU)
	if err != nil {
		return err
	}
	weight := tensor.Sparse(swr)
	start = time.Now()
	if err := engine.SGDMomUpdateEx(p, weight, tensor.Sparse(sg), tensor.Sparse(smom), optim.WriteInplace, weight); err != nil {
		return err
	}
	sparseTime := time.Since(start)

	before := untouchedSum(table, cfg.cols, touched)
	after := untouchedSum(sw.AsFloat32(), cfg.cols, touched)
	logger.Info("bench",
		"rows", cfg.rows, "cols", cfg.cols, "touched", cfg.touched,
		"dense", denseTime, "row_sparse", sparseTime)
	fmt.Printf("dense:      %v\n", denseTime)
	fmt.Printf("row_sparse: %v\n", sparseTime)
	fmt.Printf("untouched checksum: before=%.6f after=%.6f equal=%t\n", before, after, before == after)
	if !floats.EqualApprox(widen(w.AsFloat32()), widen(sw.AsFloat32()), 1e-6) {
		return fmt.Errorf("dense and row-sparse results differ")
	}
	return nil
}

// untouchedSum sums the rows of data that are not in touched.
func untouchedSum(data []float32, cols int, touched map[int]bool) float64 {
	var rows []float64
	for r := 0; r*cols < len(data); r++ {
		if touched[r] {
			continue
		}
		rows = append(rows, widen(data[r*cols:(r+1)*cols])...)
	}
	return floats.Sum(rows)
}

func widen(xs []float32) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = float64(x)
	}
	return out
}
