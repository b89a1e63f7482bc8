// Package backend provides interchangeable ways of locating a batch of
// query values in a sorted sequence. Every implementation returns the same
// indices for the same inputs; they differ in where the bisection runs and
// in which representation they consume.
package backend

import (
	"errors"
	"fmt"

	"github.com/weiihann/bisectbench/locate"
	"github.com/weiihann/bisectbench/repr"
	"github.com/weiihann/bisectbench/service"
)

// ErrUnsupported is returned when a backend is handed a representation it
// does not consume.
var ErrUnsupported = errors.New("unsupported representation")

// Locator locates a batch of queries inside a sorted space.
type Locator interface {
	// Name identifies the backend in logs and reports.
	Name() string

	// Accepts returns the representation the backend consumes.
	Accepts() repr.Kind

	// LocateBatch returns the interval index of each query, in order.
	LocateBatch(space, queries repr.Representation) ([]int, error)
}

func unsupported(l Locator, r repr.Representation) error {
	return fmt.Errorf("%s: %w: %s", l.Name(), ErrUnsupported, r.Kind())
}

// InProcess runs the bisection in this process on a slice view of the
// representation, without copying it.
type InProcess struct {
	kind repr.Kind
}

// NewInProcess returns an in-process backend for the given kind.
func NewInProcess(kind repr.Kind) *InProcess {
	return &InProcess{kind: kind}
}

func (b *InProcess) Name() string { return "in_process_" + b.kind.String() }
func (b *InProcess) Accepts() repr.Kind { return b.kind }

func (b *InProcess) LocateBatch(space, queries repr.Representation) ([]int, error) {
	if space.Kind() != b.kind {
		return nil, unsupported(b, space)
	}

	values, err := repr.Values(space)
	if err != nil {
		return nil, err
	}

	targets, err := repr.Values(queries)
	if err != nil {
		return nil, err
	}

	return locate.LocateAll(values, targets)
}

// RemoteSequence crosses the boundary once per query, copying the whole
// sequence into every request.
type RemoteSequence struct {
	client *service.Client
}

func NewRemoteSequence(client *service.Client) *RemoteSequence {
	return &RemoteSequence{client: client}
}

func (b *RemoteSequence) Name() string { return "remote_sequence" }
func (b *RemoteSequence) Accepts() repr.Kind { return repr.KindSequence }

func (b *RemoteSequence) LocateBatch(space, queries repr.Representation) ([]int, error) {
	seq, ok := space.(repr.Sequence)
	if !ok {
		return nil, unsupported(b, space)
	}

	targets, err := repr.Values(queries)
	if err != nil {
		return nil, err
	}

	out := make([]int, len(targets))
	for i, q := range targets {
		if out[i], err = b.client.LocateOne(seq, q); err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
	}

	return out, nil
}

// RemoteBuffer shares the buffer with the service once per batch and then
// crosses the boundary once per query with only the query value.
type RemoteBuffer struct {
	client *service.Client
}

func NewRemoteBuffer(client *service.Client) *RemoteBuffer {
	return &RemoteBuffer{client: client}
}

func (b *RemoteBuffer) Name() string { return "remote_buffer" }
func (b *RemoteBuffer) Accepts() repr.Kind { return repr.KindBuffer }

func (b *RemoteBuffer) LocateBatch(space, queries repr.Representation) (_ []int, err error) {
	buf, ok := space.(repr.Buffer)
	if !ok {
		return nil, unsupported(b, space)
	}

	targets, err := repr.Values(queries)
	if err != nil {
		return nil, err
	}

	a, err := b.client.AttachBuffer(buf)
	if err != nil {
		return nil, fmt.Errorf("attach: %w", err)
	}

	defer func() {
		if derr := b.client.DetachBuffer(a); derr != nil && err == nil {
			err = fmt.Errorf("detach: %w", derr)
		}
	}()

	out := make([]int, len(targets))
	for i, q := range targets {
		if out[i], err = b.client.LocateOneOnBuffer(a, q); err != nil {
			return nil, fmt.Errorf("query %d: %w", i, err)
		}
	}

	return out, nil
}

// RemoteColumnar locates the whole batch in a single crossing. Both the
// space and the queries must be columnar.
type RemoteColumnar struct {
	client *service.Client
}

func NewRemoteColumnar(client *service.Client) *RemoteColumnar {
	return &RemoteColumnar{client: client}
}

func (b *RemoteColumnar) Name() string { return "remote_columnar" }
func (b *RemoteColumnar) Accepts() repr.Kind { return repr.KindColumnar }

func (b *RemoteColumnar) LocateBatch(space, queries repr.Representation) ([]int, error) {
	col, ok := space.(*repr.Columnar)
	if !ok {
		return nil, unsupported(b, space)
	}

	qcol, ok := queries.(*repr.Columnar)
	if !ok {
		return nil, unsupported(b, queries)
	}

	result, err := b.client.LocateBatchColumnar(col, qcol)
	if err != nil {
		return nil, err
	}
	defer result.Release()

	if result.Len() != qcol.Len() {
		return nil, &service.BoundaryError{
			Op:  "locate_batch_on_columnar",
			Err: fmt.Errorf("got %d results for %d queries", result.Len(), qcol.Len()),
		}
	}

	out := make([]int, result.Len())
	for i, idx := range result.Uint64Values() {
		out[i] = int(idx)
	}

	return out, nil
}
