// Package report formats scenario results into comparison tables.
package report

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/weiihann/bisectbench/harness"
)

// Generate writes a markdown comparison table for the given results.
func Generate(w io.Writer, results []harness.ScenarioResult) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to report")
	}

	digests := make([]string, len(results))
	for i, r := range results {
		digests[i] = Digest(r.Indices)
	}

	fastestMs := findFastest(results)

	// Header.
	fmt.Fprintln(w, "## Benchmark Results")
	fmt.Fprintln(w)

	// Index equivalence check.
	if allEqual(digests) {
		fmt.Fprintln(w, "Located indices: **all match**")
	} else {
		fmt.Fprintln(w, "Located indices: **MISMATCH**")

		for i, r := range results {
			fmt.Fprintf(w, "  - %s: %s\n", r.Name, digests[i])
		}
	}

	fmt.Fprintln(w)

	// Table header.
	fmt.Fprintln(w, "| Scenario | Elapsed | Per Query | Queries | Slowdown |")
	fmt.Fprintln(w, "|----------|---------|-----------|---------|----------|")

	for _, r := range results {
		slowdown := 1.0
		if fastestMs > 0 && r.ElapsedMs > 0 {
			slowdown = r.ElapsedMs / fastestMs
		}

		fmt.Fprintf(w, "| %s | %s | %s | %d | %.2fx |\n",
			r.Name,
			formatMs(r.ElapsedMs),
			formatPerQuery(r.ElapsedMs, len(r.Indices)),
			len(r.Indices),
			slowdown,
		)
	}

	return nil
}

type jsonResult struct {
	harness.ScenarioResult

	Queries int    `json:"queries"`
	Digest  string `json:"digest"`
}

// GenerateJSON writes results as JSON to w.
func GenerateJSON(w io.Writer, results []harness.ScenarioResult) error {
	out := make([]jsonResult, len(results))
	for i, r := range results {
		out[i] = jsonResult{
			ScenarioResult: r,
			Queries:        len(r.Indices),
			Digest:         Digest(r.Indices),
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

// Digest returns a short fingerprint of a sequence of indices.
func Digest(indices []int) string {
	h := sha256.New()

	var buf [8]byte
	for _, idx := range indices {
		binary.LittleEndian.PutUint64(buf[:], uint64(idx))
		h.Write(buf[:])
	}

	return hex.EncodeToString(h.Sum(nil)[:8])
}

func allEqual(digests []string) bool {
	for _, d := range digests[1:] {
		if d != digests[0] {
			return false
		}
	}

	return true
}

func findFastest(results []harness.ScenarioResult) float64 {
	fastest := math.MaxFloat64
	for _, r := range results {
		if r.ElapsedMs > 0 && r.ElapsedMs < fastest {
			fastest = r.ElapsedMs
		}
	}

	if fastest == math.MaxFloat64 {
		return 0
	}

	return fastest
}

func formatMs(ms float64) string {
	if ms < 1000 {
		return fmt.Sprintf("%.1fms", ms)
	}

	return fmt.Sprintf("%.2fs", ms/1000)
}

func formatPerQuery(ms float64, queries int) string {
	if queries == 0 {
		return "-"
	}

	us := ms * 1000 / float64(queries)
	if us < 1000 {
		return fmt.Sprintf("%.2fµs", us)
	}

	return fmt.Sprintf("%.2fms", us/1000)
}
