package workload

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateDeterministic(t *testing.T) {
	cfg := Config{Size: 1000, Queries: 50, Seed: 42}

	w1, err := NewGenerator(cfg).Generate()
	require.NoError(t, err)

	w2, err := NewGenerator(cfg).Generate()
	require.NoError(t, err)

	assert.Equal(t, w1, w2, "workloads are not deterministic for same seed")

	w3, err := NewGenerator(Config{Size: 1000, Queries: 50, Seed: 43}).Generate()
	require.NoError(t, err)
	assert.NotEqual(t, w1.Sequence, w3.Sequence)
}

func TestGenerateShape(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"minimal", Config{Size: 2, Queries: 1, Seed: 1}},
		{"single query", Config{Size: 10, Queries: 1, Seed: 2}},
		{"default shape", Config{Size: 10_000, Queries: 1_000, Seed: 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, err := NewGenerator(tt.cfg).Generate()
			require.NoError(t, err)

			require.Len(t, w.Sequence, tt.cfg.Size)
			require.Len(t, w.Queries, tt.cfg.Queries)
			assert.Equal(t, tt.cfg.Seed, w.Seed)

			for i := 1; i < len(w.Sequence); i++ {
				require.LessOrEqual(t, w.Sequence[i-1], w.Sequence[i], "index %d", i)
			}

			for _, q := range w.Queries {
				assert.GreaterOrEqual(t, q, 0.0)
				assert.Less(t, q, float64(tt.cfg.Size/2))
				assert.Equal(t, float64(int(q)), q, "queries are integer valued")
			}
		})
	}
}

func TestGenerateInvalidConfig(t *testing.T) {
	for _, cfg := range []Config{
		{Size: 1, Queries: 1},
		{Size: 0, Queries: 1},
		{Size: 10, Queries: 0},
		{Size: 10, Queries: -1},
	} {
		_, err := NewGenerator(cfg).Generate()
		require.Error(t, err, "%+v", cfg)
	}
}

func TestSaveLoad(t *testing.T) {
	w, err := NewGenerator(Config{Size: 500, Queries: 20, Seed: 99}).Generate()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, w.Save(&buf))

	got, err := Load(&buf)
	require.NoError(t, err)

	assert.Equal(t, w.Seed, got.Seed)
	assert.Equal(t, w.Sequence, got.Sequence)
	assert.Equal(t, w.Queries, got.Queries)
}

func TestLoadGarbage(t *testing.T) {
	_, err := Load(strings.NewReader("not a workload"))
	require.Error(t, err)
}

func TestLoadTooShort(t *testing.T) {
	w := &Workload{Seed: 1, Sequence: []float64{1}, Queries: []float64{1}}

	var buf bytes.Buffer
	require.NoError(t, w.Save(&buf))

	_, err := Load(&buf)
	require.Error(t, err)
}
