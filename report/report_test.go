package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiihann/bisectbench/harness"
)

func TestGenerateMatchingIndices(t *testing.T) {
	results := []harness.ScenarioResult{
		{Name: "in_process_on_buffer", ElapsedMs: 1.5, Indices: []int{1, 2, 3, 4}},
		{Name: "remote_sequence_copy", ElapsedMs: 3000, Indices: []int{1, 2, 3, 4}},
	}

	var buf bytes.Buffer
	require.NoError(t, Generate(&buf, results))

	output := buf.String()

	assert.Contains(t, output, "all match")
	assert.Contains(t, output, "in_process_on_buffer")
	assert.Contains(t, output, "remote_sequence_copy")
	assert.Contains(t, output, "2000.00x", "remote is 2000 times slower")
	assert.Contains(t, output, "3.00s")
	assert.Contains(t, output, "750.00ms", "per-query cost of the remote scenario")
	assert.Contains(t, output, "375.00µs")
}

func TestGenerateMismatchedIndices(t *testing.T) {
	results := []harness.ScenarioResult{
		{Name: "a", ElapsedMs: 10, Indices: []int{1, 2}},
		{Name: "b", ElapsedMs: 20, Indices: []int{1, 3}},
	}

	var buf bytes.Buffer
	require.NoError(t, Generate(&buf, results))

	output := buf.String()

	assert.Contains(t, output, "MISMATCH")
	assert.Contains(t, output, Digest([]int{1, 2}))
	assert.Contains(t, output, Digest([]int{1, 3}))
}

func TestGenerateEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, Generate(&buf, nil))
}

func TestGenerateJSON(t *testing.T) {
	results := []harness.ScenarioResult{
		{Name: "in_process_on_buffer", ElapsedMs: 12.3, Indices: []int{4, 5, 6}},
	}

	var buf bytes.Buffer
	require.NoError(t, GenerateJSON(&buf, results))

	var parsed []struct {
		Name      string  `json:"name"`
		ElapsedMs float64 `json:"elapsed_ms"`
		Queries   int     `json:"queries"`
		Digest    string  `json:"digest"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed), "output is not valid JSON")

	require.Len(t, parsed, 1)
	assert.Equal(t, "in_process_on_buffer", parsed[0].Name)
	assert.InDelta(t, 12.3, parsed[0].ElapsedMs, 1e-9)
	assert.Equal(t, 3, parsed[0].Queries)
	assert.Equal(t, Digest([]int{4, 5, 6}), parsed[0].Digest)
	assert.NotContains(t, buf.String(), "indices")
}

func TestDigest(t *testing.T) {
	assert.Len(t, Digest(nil), 16)
	assert.Equal(t, Digest([]int{1, 2}), Digest([]int{1, 2}))
	assert.NotEqual(t, Digest([]int{1, 2}), Digest([]int{2, 1}))
}

func TestFormatMs(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0, "0.0ms"},
		{0.4, "0.4ms"},
		{999.9, "999.9ms"},
		{1000, "1.00s"},
		{1500, "1.50s"},
		{60000, "60.00s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatMs(tt.input), "formatMs(%v)", tt.input)
	}
}

func TestFormatPerQuery(t *testing.T) {
	tests := []struct {
		ms      float64
		queries int
		want    string
	}{
		{1, 0, "-"},
		{1, 1000, "1.00µs"},
		{2000, 1000, "2.00ms"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, formatPerQuery(tt.ms, tt.queries))
	}
}
