package service

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/weiihann/bisectbench/locate"
	"github.com/weiihann/bisectbench/repr"
)

// ErrBoundary is returned when the locator service cannot be reached or
// answers with something that cannot be decoded.
var ErrBoundary = errors.New("locator service boundary")

// BoundaryError records which call failed to cross the boundary.
type BoundaryError struct {
	Op  string
	Err error
}

func (e *BoundaryError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrBoundary, e.Op, e.Err)
}

func (e *BoundaryError) Unwrap() []error { return []error{ErrBoundary, e.Err} }

// Client issues locator requests to a service. It is not safe for
// concurrent use: each call writes one request and blocks for its response.
type Client struct {
	conn    *Conn
	closer  io.Closer
	mem     memory.Allocator
	scratch []byte
	shmDir  string
}

// NewClient creates a Client writing requests to w and reading responses
// from r. Closing the client closes w.
func NewClient(r io.Reader, w io.WriteCloser) *Client {
	return &Client{
		conn:   NewConn(r, w),
		closer: w,
		mem:    memory.NewGoAllocator(),
		shmDir: DefaultShmDir(),
	}
}

// SetShmDir sets the directory in which shared buffer files are created.
func (c *Client) SetShmDir(dir string) {
	if dir != "" {
		c.shmDir = dir
	}
}

// Close closes the request stream, which makes the service exit.
func (c *Client) Close() error {
	return c.closer.Close()
}

// LocateOne sends the whole sequence with the value and returns the
// located index.
func (c *Client) LocateOne(space []float64, value float64) (int, error) {
	need := 8 + len(space)*repr.Stride
	if cap(c.scratch) < need {
		c.scratch = make([]byte, need)
	}

	payload := c.scratch[:need]
	putFloat64(payload, value)

	for i, v := range space {
		putFloat64(payload[8+i*repr.Stride:], v)
	}

	resp, err := c.roundTrip(OpLocateOne, payload)
	if err != nil {
		return 0, err
	}

	return decodeIndex(OpLocateOne, resp)
}

// Attachment is a buffer shared with the service through a file both sides
// map.
type Attachment struct {
	Handle uint32
	Path   string
}

// AttachBuffer copies buf into a shared file and asks the service to map
// it. The file is removed by DetachBuffer.
func (c *Client) AttachBuffer(buf repr.Buffer) (Attachment, error) {
	if buf.Len() == 0 {
		return Attachment{}, &repr.ConversionError{
			From:   repr.KindBuffer,
			To:     repr.KindBuffer,
			Reason: "empty buffer",
		}
	}

	f, err := os.CreateTemp(c.shmDir, "bisectbench-buffer-*.f64")
	if err != nil {
		return Attachment{}, fmt.Errorf("create shared file: %w", err)
	}

	path := f.Name()

	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		os.Remove(path)

		return Attachment{}, fmt.Errorf("write shared file: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(path)

		return Attachment{}, fmt.Errorf("close shared file: %w", err)
	}

	payload := make([]byte, 8, 8+len(path))
	binary.LittleEndian.PutUint64(payload, uint64(buf.Len()))
	payload = append(payload, path...)

	resp, err := c.roundTrip(OpAttachBuffer, payload)
	if err != nil {
		os.Remove(path)

		return Attachment{}, err
	}

	if len(resp) != 4 {
		os.Remove(path)

		return Attachment{}, &BoundaryError{
			Op:  opName(OpAttachBuffer),
			Err: fmt.Errorf("response of %d bytes, want 4", len(resp)),
		}
	}

	return Attachment{Handle: binary.LittleEndian.Uint32(resp), Path: path}, nil
}

// LocateOneOnBuffer locates value in a previously attached buffer.
func (c *Client) LocateOneOnBuffer(a Attachment, value float64) (int, error) {
	var payload [12]byte
	binary.LittleEndian.PutUint32(payload[:], a.Handle)
	putFloat64(payload[4:], value)

	resp, err := c.roundTrip(OpLocateOneOnBuffer, payload[:])
	if err != nil {
		return 0, err
	}

	return decodeIndex(OpLocateOneOnBuffer, resp)
}

// DetachBuffer releases the service's mapping and removes the shared file.
func (c *Client) DetachBuffer(a Attachment) error {
	defer os.Remove(a.Path)

	var payload [4]byte
	binary.LittleEndian.PutUint32(payload[:], a.Handle)

	_, err := c.roundTrip(OpDetachBuffer, payload[:])

	return err
}

// LocateBatchColumnar locates every query in one call. The caller releases
// the returned array.
func (c *Client) LocateBatchColumnar(space, queries *repr.Columnar) (*array.Uint64, error) {
	payload, err := encodeBatchRequest(space.Array(), queries.Array())
	if err != nil {
		return nil, &BoundaryError{Op: opName(OpLocateBatch), Err: err}
	}

	resp, err := c.roundTrip(OpLocateBatch, payload)
	if err != nil {
		return nil, err
	}

	arr, err := decodeColumn(c.mem, bytes.Clone(resp))
	if err != nil {
		return nil, &BoundaryError{Op: opName(OpLocateBatch), Err: err}
	}

	indices, ok := arr.(*array.Uint64)
	if !ok {
		arr.Release()

		return nil, &BoundaryError{
			Op:  opName(OpLocateBatch),
			Err: fmt.Errorf("result of type %s, want uint64", arr.DataType()),
		}
	}

	return indices, nil
}

func (c *Client) roundTrip(op byte, payload []byte) ([]byte, error) {
	if err := c.conn.WriteFrame(op, payload); err != nil {
		return nil, &BoundaryError{Op: opName(op), Err: fmt.Errorf("write request: %w", err)}
	}

	frame, err := c.conn.ReadFrame()
	if err != nil {
		return nil, &BoundaryError{Op: opName(op), Err: fmt.Errorf("read response: %w", err)}
	}

	switch frame.Op {
	case RespOK:
		return frame.Payload, nil
	case RespErr:
		return nil, remoteError(op, frame.Payload)
	default:
		return nil, &BoundaryError{
			Op:  opName(op),
			Err: fmt.Errorf("unexpected response %s", opName(frame.Op)),
		}
	}
}

// remoteError maps an error frame back onto the local error kinds so
// callers can use errors.Is regardless of which side failed.
func remoteError(op byte, payload []byte) error {
	code, msg := decodeError(payload)

	switch code {
	case CodeInvalidInput:
		return fmt.Errorf("%s: %w (remote: %s)", opName(op), locate.ErrInvalidInput, msg)
	case CodeConversion:
		return fmt.Errorf("%s: %w (remote: %s)", opName(op), repr.ErrConversion, msg)
	default:
		return &BoundaryError{Op: opName(op), Err: errors.New(msg)}
	}
}

func decodeIndex(op byte, resp []byte) (int, error) {
	if len(resp) != 8 {
		return 0, &BoundaryError{
			Op:  opName(op),
			Err: fmt.Errorf("response of %d bytes, want 8", len(resp)),
		}
	}

	return int(binary.LittleEndian.Uint64(resp)), nil
}

// DefaultShmDir prefers a memory-backed filesystem for shared buffers.
func DefaultShmDir() string {
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		return "/dev/shm"
	}

	return os.TempDir()
}
