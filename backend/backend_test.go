package backend

import (
	"context"
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weiihann/bisectbench/locate"
	"github.com/weiihann/bisectbench/repr"
	"github.com/weiihann/bisectbench/service"
)

func newClient(t *testing.T) *service.Client {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, stop := service.Pipe(context.Background(), logger)
	client.SetShmDir(t.TempDir())

	t.Cleanup(func() {
		require.NoError(t, stop())
	})

	return client
}

type inputs struct {
	seq      repr.Sequence
	buf      repr.Buffer
	col      *repr.Columnar
	queries  repr.Sequence
	qcol     *repr.Columnar
	expected []int
}

func newInputs(t *testing.T, size, count int, seed int64) inputs {
	t.Helper()

	rng := rand.New(rand.NewSource(seed))

	seq := make(repr.Sequence, size)
	sum := 0.0
	for i := range seq {
		sum += rng.Float64()
		seq[i] = sum
	}

	queries := make(repr.Sequence, count)
	for i := range queries {
		queries[i] = float64(rng.Intn(size / 2))
	}

	buf, err := repr.ToBuffer(seq)
	require.NoError(t, err)

	col, err := repr.ToColumnar(buf)
	require.NoError(t, err)
	t.Cleanup(col.Release)

	qbuf, err := repr.ToBuffer(queries)
	require.NoError(t, err)

	qcol, err := repr.ToColumnar(qbuf)
	require.NoError(t, err)
	t.Cleanup(qcol.Release)

	expected, err := locate.LocateAll(seq, queries)
	require.NoError(t, err)

	return inputs{
		seq:      seq,
		buf:      buf,
		col:      col,
		queries:  queries,
		qcol:     qcol,
		expected: expected,
	}
}

func (in inputs) spaceFor(kind repr.Kind) repr.Representation {
	switch kind {
	case repr.KindSequence:
		return in.seq
	case repr.KindBuffer:
		return in.buf
	default:
		return in.col
	}
}

func (in inputs) queriesFor(kind repr.Kind) repr.Representation {
	if kind == repr.KindColumnar {
		return in.qcol
	}

	return in.queries
}

func TestBackendsEquivalent(t *testing.T) {
	client := newClient(t)

	locators := []Locator{
		NewInProcess(repr.KindSequence),
		NewInProcess(repr.KindBuffer),
		NewInProcess(repr.KindColumnar),
		NewRemoteSequence(client),
		NewRemoteBuffer(client),
		NewRemoteColumnar(client),
	}

	for _, seed := range []int64{1, 2, 3} {
		in := newInputs(t, 2000, 200, seed)

		for _, l := range locators {
			got, err := l.LocateBatch(in.spaceFor(l.Accepts()), in.queriesFor(l.Accepts()))
			require.NoError(t, err, l.Name())
			assert.Equal(t, in.expected, got, "%s seed %d", l.Name(), seed)
		}
	}
}

func TestBackendsTwoElementSpace(t *testing.T) {
	client := newClient(t)

	seq := repr.Sequence{5, 6}
	buf := repr.NewBuffer(seq)

	col, err := repr.ToColumnar(buf)
	require.NoError(t, err)
	defer col.Release()

	queries := repr.Sequence{-10, 5, 5.5, 6, 100}

	qcol, err := repr.ToColumnar(repr.NewBuffer(queries))
	require.NoError(t, err)
	defer qcol.Release()

	want := []int{0, 0, 0, 0, 0}

	got, err := NewRemoteSequence(client).LocateBatch(seq, queries)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = NewRemoteBuffer(client).LocateBatch(buf, queries)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = NewRemoteColumnar(client).LocateBatch(col, qcol)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestBackendsInvalidInput(t *testing.T) {
	client := newClient(t)

	seq := repr.Sequence{1}
	buf := repr.NewBuffer(seq)

	col, err := repr.ToColumnar(buf)
	require.NoError(t, err)
	defer col.Release()

	qcol, err := repr.ToColumnar(repr.NewBuffer(seq))
	require.NoError(t, err)
	defer qcol.Release()

	_, err = NewInProcess(repr.KindSequence).LocateBatch(seq, seq)
	require.ErrorIs(t, err, locate.ErrInvalidInput)

	_, err = NewRemoteSequence(client).LocateBatch(seq, seq)
	require.ErrorIs(t, err, locate.ErrInvalidInput)

	_, err = NewRemoteBuffer(client).LocateBatch(buf, seq)
	require.ErrorIs(t, err, locate.ErrInvalidInput)

	_, err = NewRemoteColumnar(client).LocateBatch(col, qcol)
	require.ErrorIs(t, err, locate.ErrInvalidInput)
}

func TestBackendsRejectWrongKind(t *testing.T) {
	client := newClient(t)
	in := newInputs(t, 10, 3, 1)

	tests := []struct {
		l     Locator
		space repr.Representation
	}{
		{NewInProcess(repr.KindSequence), in.buf},
		{NewInProcess(repr.KindBuffer), in.seq},
		{NewRemoteSequence(client), in.buf},
		{NewRemoteBuffer(client), in.seq},
		{NewRemoteColumnar(client), in.seq},
	}

	for _, tt := range tests {
		_, err := tt.l.LocateBatch(tt.space, in.queries)
		require.ErrorIs(t, err, ErrUnsupported, tt.l.Name())
	}

	_, err := NewRemoteColumnar(client).LocateBatch(in.col, in.queries)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestRemoteAfterServiceStopped(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	client, stop := service.Pipe(context.Background(), logger)
	require.NoError(t, stop())

	in := newInputs(t, 10, 3, 1)

	_, err := NewRemoteSequence(client).LocateBatch(in.seq, in.queries)
	require.ErrorIs(t, err, service.ErrBoundary)
}
