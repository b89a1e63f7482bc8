// Package service implements the out-of-process locator: a framed
// request/response protocol spoken over a pair of byte streams, the server
// loop that answers it, and the client the cross-boundary backends use.
package service

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	MagicNumber = 0x4C

	OpLocateOne         = 0x01
	OpAttachBuffer      = 0x02
	OpLocateOneOnBuffer = 0x03
	OpDetachBuffer      = 0x04
	OpLocateBatch       = 0x05

	RespOK  = 0x00
	RespErr = 0xFF
)

// Error codes carried in the first payload byte of a RespErr frame.
const (
	CodeInternal     = 0x01
	CodeInvalidInput = 0x02
	CodeConversion   = 0x03
	CodeMalformed    = 0x04
)

const headerSize = 6

// MaxPayload bounds a single frame.
const MaxPayload = math.MaxUint32

var errBadMagic = errors.New("invalid magic number")

func opName(op byte) string {
	switch op {
	case OpLocateOne:
		return "locate_one"
	case OpAttachBuffer:
		return "attach_buffer"
	case OpLocateOneOnBuffer:
		return "locate_one_on_buffer"
	case OpDetachBuffer:
		return "detach_buffer"
	case OpLocateBatch:
		return "locate_batch_on_columnar"
	case RespOK:
		return "ok"
	case RespErr:
		return "error"
	default:
		return fmt.Sprintf("op(0x%02x)", op)
	}
}

// Frame is one decoded message.
type Frame struct {
	Op      byte
	Payload []byte
}

// Conn reads and writes frames over a stream pair. The payload returned by
// ReadFrame is only valid until the next call.
type Conn struct {
	r       *bufio.Reader
	w       *bufio.Writer
	scratch []byte
}

// NewConn wraps r and w.
func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{
		r: bufio.NewReaderSize(r, 1<<16),
		w: bufio.NewWriterSize(w, 1<<16),
	}
}

// WriteFrame writes a header followed by the concatenation of parts and
// flushes.
func (c *Conn) WriteFrame(op byte, parts ...[]byte) error {
	total := 0
	for _, p := range parts {
		total += len(p)
	}

	if uint64(total) > MaxPayload {
		return fmt.Errorf("payload of %d bytes exceeds frame limit", total)
	}

	var header [headerSize]byte
	header[0] = MagicNumber
	header[1] = op
	binary.BigEndian.PutUint32(header[2:], uint32(total))

	if _, err := c.w.Write(header[:]); err != nil {
		return err
	}

	for _, p := range parts {
		if _, err := c.w.Write(p); err != nil {
			return err
		}
	}

	return c.w.Flush()
}

// ReadFrame reads the next frame.
func (c *Conn) ReadFrame() (Frame, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(c.r, header[:]); err != nil {
		return Frame{}, err
	}

	if header[0] != MagicNumber {
		return Frame{}, errBadMagic
	}

	n := int(binary.BigEndian.Uint32(header[2:]))
	if cap(c.scratch) < n {
		c.scratch = make([]byte, n)
	}

	payload := c.scratch[:n]
	if _, err := io.ReadFull(c.r, payload); err != nil {
		return Frame{}, fmt.Errorf("read payload: %w", err)
	}

	return Frame{Op: header[1], Payload: payload}, nil
}

// WriteError sends a RespErr frame.
func (c *Conn) WriteError(code byte, msg string) error {
	return c.WriteFrame(RespErr, []byte{code}, []byte(msg))
}

func decodeError(payload []byte) (byte, string) {
	if len(payload) == 0 {
		return CodeInternal, "empty error frame"
	}

	return payload[0], string(payload[1:])
}

func putFloat64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

func getFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}
