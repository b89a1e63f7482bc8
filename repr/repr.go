// Package repr converts numeric sequences between the representations the
// backends consume: a growable slice, a flat fixed-stride buffer and an
// Arrow columnar array.
package repr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Stride is the byte width of one element in a Buffer.
const Stride = arrow.Float64SizeBytes

// Kind tags a representation.
type Kind int

const (
	KindSequence Kind = iota
	KindBuffer
	KindColumnar
)

func (k Kind) String() string {
	switch k {
	case KindSequence:
		return "sequence"
	case KindBuffer:
		return "buffer"
	case KindColumnar:
		return "columnar"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Representation is one materialization of a numeric sequence.
type Representation interface {
	Kind() Kind
	Len() int
}

// ErrConversion is returned when an adapter receives an empty or malformed
// input.
var ErrConversion = errors.New("conversion failed")

// ConversionError describes a failed conversion between two kinds.
type ConversionError struct {
	From   Kind
	To     Kind
	Reason string
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert %s to %s: %s", e.From, e.To, e.Reason)
}

func (e *ConversionError) Unwrap() error { return ErrConversion }

// Sequence is the growable slice form.
type Sequence []float64

func (Sequence) Kind() Kind { return KindSequence }
func (s Sequence) Len() int { return len(s) }

// Buffer is a flat little-endian float64 buffer with a fixed stride.
type Buffer struct {
	data []byte
}

func (Buffer) Kind() Kind { return KindBuffer }
func (b Buffer) Len() int { return len(b.data) / Stride }

// Bytes returns the backing bytes. They must not be modified.
func (b Buffer) Bytes() []byte { return b.data }

// Float64s returns a view of the buffer without copying.
func (b Buffer) Float64s() []float64 {
	return arrow.Float64Traits.CastFromBytes(b.data)
}

// At returns the i-th element.
func (b Buffer) At(i int) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b.data[i*Stride:]))
}

// BufferFromBytes wraps raw bytes as a Buffer after validating the stride.
// The bytes are not copied.
func BufferFromBytes(data []byte) (Buffer, error) {
	if len(data) == 0 {
		return Buffer{}, &ConversionError{From: KindBuffer, To: KindBuffer, Reason: "empty buffer"}
	}

	if len(data)%Stride != 0 {
		return Buffer{}, &ConversionError{
			From:   KindBuffer,
			To:     KindBuffer,
			Reason: fmt.Sprintf("length %d is not a multiple of %d", len(data), Stride),
		}
	}

	return Buffer{data: data}, nil
}

// NewBuffer copies values into a freshly allocated Buffer.
func NewBuffer(values []float64) Buffer {
	// Allocating as []float64 keeps the bytes 8-byte aligned for the
	// zero-copy views.
	backing := make([]float64, len(values))
	copy(backing, values)

	return Buffer{data: arrow.Float64Traits.CastToBytes(backing)}
}

// Columnar is an Arrow float64 array. Release must be called when done.
type Columnar struct {
	arr *array.Float64
}

func (*Columnar) Kind() Kind { return KindColumnar }
func (c *Columnar) Len() int { return c.arr.Len() }

// Array returns the underlying Arrow array.
func (c *Columnar) Array() *array.Float64 { return c.arr }

// NullN returns the null count carried in the array metadata.
func (c *Columnar) NullN() int { return c.arr.NullN() }

// Release drops the reference held on the Arrow array.
func (c *Columnar) Release() { c.arr.Release() }

// WrapColumnar validates an Arrow array received from elsewhere and takes a
// reference to it.
func WrapColumnar(arr arrow.Array) (*Columnar, error) {
	f, ok := arr.(*array.Float64)
	if !ok {
		return nil, &ConversionError{
			From:   KindColumnar,
			To:     KindColumnar,
			Reason: fmt.Sprintf("unexpected type %s", arr.DataType()),
		}
	}

	if f.NullN() > 0 {
		return nil, &ConversionError{
			From:   KindColumnar,
			To:     KindColumnar,
			Reason: fmt.Sprintf("%d null values", f.NullN()),
		}
	}

	f.Retain()

	return &Columnar{arr: f}, nil
}

// ToSequence copies a Buffer into a growable slice, one element at a time.
func ToSequence(b Buffer) (Sequence, error) {
	if b.Len() == 0 {
		return nil, &ConversionError{From: KindBuffer, To: KindSequence, Reason: "empty buffer"}
	}

	var seq Sequence
	for i := range b.Len() {
		seq = append(seq, b.At(i))
	}

	return seq, nil
}

// ToBuffer copies a Sequence into a contiguous Buffer.
func ToBuffer(s Sequence) (Buffer, error) {
	if len(s) == 0 {
		return Buffer{}, &ConversionError{From: KindSequence, To: KindBuffer, Reason: "empty sequence"}
	}

	return NewBuffer(s), nil
}

// ToColumnar wraps a Buffer as an Arrow float64 array. Only the array
// metadata is allocated; the values stay in the Buffer's bytes.
func ToColumnar(b Buffer) (*Columnar, error) {
	if b.Len() == 0 {
		return nil, &ConversionError{From: KindBuffer, To: KindColumnar, Reason: "empty buffer"}
	}

	values := memory.NewBufferBytes(b.data)
	data := array.NewData(
		arrow.PrimitiveTypes.Float64, b.Len(),
		[]*memory.Buffer{nil, values},
		nil, 0, 0,
	)
	defer data.Release()

	return &Columnar{arr: array.NewFloat64Data(data)}, nil
}

// Values returns a read-only view of r's elements. Sequence and Buffer
// views share memory with r; the Columnar view shares memory with the
// Arrow value buffer.
func Values(r Representation) ([]float64, error) {
	switch v := r.(type) {
	case Sequence:
		return v, nil
	case Buffer:
		return v.Float64s(), nil
	case *Columnar:
		return v.arr.Float64Values(), nil
	default:
		return nil, fmt.Errorf("%w: unknown representation %T", ErrConversion, r)
	}
}
