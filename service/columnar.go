package service

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// encodeColumn writes arr as a single-column Arrow IPC stream.
func encodeColumn(buf *bytes.Buffer, name string, arr arrow.Array) error {
	schema := arrow.NewSchema([]arrow.Field{
		{Name: name, Type: arr.DataType()},
	}, nil)

	rec := array.NewRecord(schema, []arrow.Array{arr}, int64(arr.Len()))
	defer rec.Release()

	w := ipc.NewWriter(buf, ipc.WithSchema(schema))
	if err := w.Write(rec); err != nil {
		w.Close()

		return fmt.Errorf("write %s record: %w", name, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s stream: %w", name, err)
	}

	return nil
}

// decodeColumn reads the first column of the first record in an Arrow IPC
// stream. The caller owns a reference to the returned array.
func decodeColumn(mem memory.Allocator, stream []byte) (arrow.Array, error) {
	rdr, err := ipc.NewReader(bytes.NewReader(stream), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	defer rdr.Release()

	if !rdr.Next() {
		if err := rdr.Err(); err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}

		return nil, fmt.Errorf("stream holds no record")
	}

	rec := rdr.Record()
	if rec.NumCols() != 1 {
		return nil, fmt.Errorf("record has %d columns, want 1", rec.NumCols())
	}

	col := rec.Column(0)
	col.Retain()

	return col, nil
}

// encodeBatchRequest lays out the space stream, prefixed by its length, and
// then the query stream.
func encodeBatchRequest(space, queries arrow.Array) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(make([]byte, 4))

	if err := encodeColumn(&buf, "space", space); err != nil {
		return nil, err
	}

	out := buf.Bytes()
	binary.BigEndian.PutUint32(out[:4], uint32(len(out)-4))

	if err := encodeColumn(&buf, "queries", queries); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func splitBatchRequest(payload []byte) (space, queries []byte, err error) {
	if len(payload) < 4 {
		return nil, nil, fmt.Errorf("batch request of %d bytes is too short", len(payload))
	}

	n := int(binary.BigEndian.Uint32(payload))
	if n > len(payload)-4 {
		return nil, nil, fmt.Errorf("space stream length %d exceeds payload", n)
	}

	return payload[4 : 4+n], payload[4+n:], nil
}
