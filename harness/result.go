// Package harness times locator scenarios and runs the fixed scenario
// registry against the in-process and out-of-process backends.
package harness

import "fmt"

// ScenarioResult holds the outcome of one scenario run.
type ScenarioResult struct {
	Name      string  `json:"name"`
	ElapsedMs float64 `json:"elapsed_ms"`
	Indices   []int   `json:"-"`
}

// Verify checks that every result located the same indices as the first.
func Verify(results []ScenarioResult) error {
	if len(results) < 2 {
		return nil
	}

	ref := results[0]
	for _, r := range results[1:] {
		if len(r.Indices) != len(ref.Indices) {
			return fmt.Errorf("%s returned %d indices, %s returned %d",
				r.Name, len(r.Indices), ref.Name, len(ref.Indices))
		}

		if i := firstDiff(ref.Indices, r.Indices); i >= 0 {
			return fmt.Errorf("%s differs from %s at query %d: %d != %d",
				r.Name, ref.Name, i, r.Indices[i], ref.Indices[i])
		}
	}

	return nil
}

func firstDiff(a, b []int) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}

	return -1
}
