package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/weiihann/bisectbench/locate"
	"github.com/weiihann/bisectbench/repr"
)

type attachment struct {
	path   string
	values []float64
	unmap  func() error
}

// Server answers locator requests on a single connection.
type Server struct {
	conn    *Conn
	mem     memory.Allocator
	logger  *slog.Logger
	buffers map[uint32]*attachment
	next    uint32
}

// NewServer creates a Server reading requests from r and writing responses
// to w.
func NewServer(r io.Reader, w io.Writer, logger *slog.Logger) *Server {
	return &Server{
		conn:    NewConn(r, w),
		mem:     memory.NewGoAllocator(),
		logger:  logger,
		buffers: make(map[uint32]*attachment),
		next:    1,
	}
}

// Serve handles requests until the peer closes its end or ctx is done.
// A clean EOF between frames returns nil.
func (s *Server) Serve(ctx context.Context) error {
	defer s.detachAll()

	s.logger.DebugContext(ctx, "locator service ready")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := s.conn.ReadFrame()
		if errors.Is(err, io.EOF) {
			s.logger.DebugContext(ctx, "peer closed connection")

			return nil
		}
		if err != nil {
			return fmt.Errorf("read request: %w", err)
		}

		if err := s.handle(frame); err != nil {
			return fmt.Errorf("%s: %w", opName(frame.Op), err)
		}
	}
}

// handle answers one request. Only failures to write the response are
// returned; request errors are reported to the peer.
func (s *Server) handle(frame Frame) error {
	switch frame.Op {
	case OpLocateOne:
		return s.locateOne(frame.Payload)
	case OpAttachBuffer:
		return s.attachBuffer(frame.Payload)
	case OpLocateOneOnBuffer:
		return s.locateOneOnBuffer(frame.Payload)
	case OpDetachBuffer:
		return s.detachBuffer(frame.Payload)
	case OpLocateBatch:
		return s.locateBatch(frame.Payload)
	default:
		return s.conn.WriteError(CodeMalformed, fmt.Sprintf("unknown op 0x%02x", frame.Op))
	}
}

func (s *Server) locateOne(payload []byte) error {
	if len(payload) < 8 || (len(payload)-8)%repr.Stride != 0 {
		return s.conn.WriteError(CodeMalformed, fmt.Sprintf("payload of %d bytes", len(payload)))
	}

	value := getFloat64(payload)

	// The sequence arrives by value; decode it into a slice of our own.
	raw := payload[8:]
	space := make([]float64, len(raw)/repr.Stride)
	for i := range space {
		space[i] = getFloat64(raw[i*repr.Stride:])
	}

	return s.replyIndex(locate.Locate(space, value, 0))
}

func (s *Server) attachBuffer(payload []byte) error {
	if len(payload) < 9 {
		return s.conn.WriteError(CodeMalformed, fmt.Sprintf("payload of %d bytes", len(payload)))
	}

	n := binary.LittleEndian.Uint64(payload)
	path := string(payload[8:])

	if n == 0 {
		return s.conn.WriteError(CodeConversion, "empty buffer")
	}

	data, unmap, err := mapFile(path, int(n)*repr.Stride)
	if err != nil {
		return s.conn.WriteError(CodeInternal, err.Error())
	}

	buf, err := repr.BufferFromBytes(data)
	if err != nil {
		_ = unmap()

		return s.conn.WriteError(CodeConversion, err.Error())
	}

	handle := s.next
	s.next++
	s.buffers[handle] = &attachment{path: path, values: buf.Float64s(), unmap: unmap}

	s.logger.Debug("buffer attached",
		slog.Uint64("handle", uint64(handle)),
		slog.String("path", path),
		slog.Uint64("length", n),
	)

	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], handle)

	return s.conn.WriteFrame(RespOK, out[:])
}

func (s *Server) locateOneOnBuffer(payload []byte) error {
	if len(payload) != 12 {
		return s.conn.WriteError(CodeMalformed, fmt.Sprintf("payload of %d bytes", len(payload)))
	}

	a, ok := s.buffers[binary.LittleEndian.Uint32(payload)]
	if !ok {
		return s.conn.WriteError(CodeMalformed, "unknown buffer handle")
	}

	return s.replyIndex(locate.Locate(a.values, getFloat64(payload[4:]), 0))
}

func (s *Server) detachBuffer(payload []byte) error {
	if len(payload) != 4 {
		return s.conn.WriteError(CodeMalformed, fmt.Sprintf("payload of %d bytes", len(payload)))
	}

	handle := binary.LittleEndian.Uint32(payload)

	a, ok := s.buffers[handle]
	if !ok {
		return s.conn.WriteError(CodeMalformed, "unknown buffer handle")
	}

	delete(s.buffers, handle)

	if err := a.unmap(); err != nil {
		return s.conn.WriteError(CodeInternal, err.Error())
	}

	return s.conn.WriteFrame(RespOK)
}

func (s *Server) locateBatch(payload []byte) error {
	spaceStream, queryStream, err := splitBatchRequest(payload)
	if err != nil {
		return s.conn.WriteError(CodeMalformed, err.Error())
	}

	space, err := s.readColumnar(spaceStream)
	if err != nil {
		return s.writeRequestError(err)
	}
	defer space.Release()

	queries, err := s.readColumnar(queryStream)
	if err != nil {
		return s.writeRequestError(err)
	}
	defer queries.Release()

	indices, err := locate.LocateAll(space.Array().Float64Values(), queries.Array().Float64Values())
	if err != nil {
		return s.writeRequestError(err)
	}

	b := array.NewUint64Builder(s.mem)
	defer b.Release()

	b.Reserve(len(indices))
	for _, idx := range indices {
		b.UnsafeAppend(uint64(idx))
	}

	result := b.NewUint64Array()
	defer result.Release()

	var out bytes.Buffer
	if err := encodeColumn(&out, "index", result); err != nil {
		return s.conn.WriteError(CodeInternal, err.Error())
	}

	return s.conn.WriteFrame(RespOK, out.Bytes())
}

func (s *Server) readColumnar(stream []byte) (*repr.Columnar, error) {
	arr, err := decodeColumn(s.mem, stream)
	if err != nil {
		return nil, err
	}
	defer arr.Release()

	return repr.WrapColumnar(arr)
}

func (s *Server) replyIndex(idx int, err error) error {
	if err != nil {
		return s.writeRequestError(err)
	}

	var out [8]byte
	binary.LittleEndian.PutUint64(out[:], uint64(idx))

	return s.conn.WriteFrame(RespOK, out[:])
}

func (s *Server) writeRequestError(err error) error {
	switch {
	case errors.Is(err, locate.ErrInvalidInput):
		return s.conn.WriteError(CodeInvalidInput, err.Error())
	case errors.Is(err, repr.ErrConversion):
		return s.conn.WriteError(CodeConversion, err.Error())
	default:
		return s.conn.WriteError(CodeMalformed, err.Error())
	}
}

func (s *Server) detachAll() {
	for handle, a := range s.buffers {
		if err := a.unmap(); err != nil {
			s.logger.Warn("failed to unmap buffer",
				slog.String("path", a.path),
				slog.String("error", err.Error()),
			)
		}

		delete(s.buffers, handle)
	}
}
