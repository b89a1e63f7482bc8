// Package workload generates the synthetic inputs of a benchmark run: an
// ascending sequence built by cumulative summation of uniform values and a
// batch of integer-valued queries inside the lower half of its index range.
package workload

import (
	"fmt"
	"io"
	mrand "math/rand"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/klauspost/compress/zstd"
)

const (
	DefaultSize    = 1_000_000
	DefaultQueries = 1_000
)

// Config controls workload generation parameters.
type Config struct {
	Size    int
	Queries int
	Seed    int64
}

// Validate reports whether cfg can produce a usable workload.
func (c Config) Validate() error {
	if c.Size < 2 {
		return fmt.Errorf("size must be at least 2, got %d", c.Size)
	}

	if c.Queries < 1 {
		return fmt.Errorf("queries must be positive, got %d", c.Queries)
	}

	return nil
}

// Workload holds the generated inputs. It is read-only once generated.
type Workload struct {
	Seed     int64
	Sequence []float64
	Queries  []float64
}

// Generator produces deterministic workloads from a Config.
type Generator struct {
	cfg Config
	rng *mrand.Rand
}

// NewGenerator creates a Generator from the given Config.
func NewGenerator(cfg Config) *Generator {
	return &Generator{
		cfg: cfg,
		rng: mrand.New(mrand.NewSource(cfg.Seed)),
	}
}

// Generate builds the sequence and the query batch.
func (g *Generator) Generate() (*Workload, error) {
	if err := g.cfg.Validate(); err != nil {
		return nil, err
	}

	seq := make([]float64, g.cfg.Size)

	sum := 0.0
	for i := range seq {
		sum += g.rng.Float64()
		seq[i] = sum
	}

	queries := make([]float64, g.cfg.Queries)
	for i := range queries {
		queries[i] = float64(g.rng.Intn(g.cfg.Size / 2))
	}

	return &Workload{
		Seed:     g.cfg.Seed,
		Sequence: seq,
		Queries:  queries,
	}, nil
}

const seedKey = "seed"

var fileSchema = arrow.NewSchema([]arrow.Field{
	{Name: "value", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Save writes w as a zstd-compressed Arrow IPC stream holding two records:
// the sequence, then the queries.
func (w *Workload) Save(out io.Writer) error {
	zw, err := zstd.NewWriter(out)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}

	md := arrow.NewMetadata([]string{seedKey}, []string{strconv.FormatInt(w.Seed, 10)})
	schema := arrow.NewSchema(fileSchema.Fields(), &md)
	mem := memory.NewGoAllocator()

	iw := ipc.NewWriter(zw, ipc.WithSchema(schema), ipc.WithAllocator(mem))

	for _, values := range [][]float64{w.Sequence, w.Queries} {
		if err := writeRecord(iw, mem, schema, values); err != nil {
			iw.Close()
			zw.Close()

			return err
		}
	}

	if err := iw.Close(); err != nil {
		zw.Close()

		return fmt.Errorf("close arrow stream: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zstd stream: %w", err)
	}

	return nil
}

func writeRecord(iw *ipc.Writer, mem memory.Allocator, schema *arrow.Schema, values []float64) error {
	b := array.NewFloat64Builder(mem)
	defer b.Release()

	b.AppendValues(values, nil)
	arr := b.NewFloat64Array()
	defer arr.Release()

	rec := array.NewRecord(schema, []arrow.Array{arr}, int64(arr.Len()))
	defer rec.Release()

	if err := iw.Write(rec); err != nil {
		return fmt.Errorf("write record: %w", err)
	}

	return nil
}

// Load reads a workload written by Save.
func Load(in io.Reader) (*Workload, error) {
	zr, err := zstd.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	rdr, err := ipc.NewReader(zr)
	if err != nil {
		return nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer rdr.Release()

	w := &Workload{}

	md := rdr.Schema().Metadata()
	if i := md.FindKey(seedKey); i >= 0 {
		if w.Seed, err = strconv.ParseInt(md.Values()[i], 10, 64); err != nil {
			return nil, fmt.Errorf("parse seed: %w", err)
		}
	}

	var columns [][]float64
	for rdr.Next() {
		col, ok := rdr.Record().Column(0).(*array.Float64)
		if !ok {
			return nil, fmt.Errorf("record %d is not float64", len(columns))
		}

		if col.NullN() > 0 {
			return nil, fmt.Errorf("record %d holds %d nulls", len(columns), col.NullN())
		}

		columns = append(columns, append([]float64(nil), col.Float64Values()...))
	}

	if err := rdr.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	if len(columns) != 2 {
		return nil, fmt.Errorf("workload holds %d records, want 2", len(columns))
	}

	w.Sequence, w.Queries = columns[0], columns[1]

	if len(w.Sequence) < 2 {
		return nil, fmt.Errorf("sequence of length %d is too short", len(w.Sequence))
	}

	if len(w.Queries) == 0 {
		return nil, fmt.Errorf("workload holds no queries")
	}

	return w, nil
}
