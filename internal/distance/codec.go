package distance

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/klauspost/compress/zstd"
)

// A row file is a zstd frame holding, little endian:
//
//	uint32 entry count
//	per entry, in ascending key order: uint32 key length, key, float64 distance
type rowCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newRowCodec() (*rowCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return &rowCodec{enc: enc, dec: dec}, nil
}

func (c *rowCodec) encode(row Row) []byte {
	var buf bytes.Buffer
	var scratch [8]byte

	binary.LittleEndian.PutUint32(scratch[:4], uint32(len(row)))
	buf.Write(scratch[:4])
	for _, k := range sortedKeys(row) {
		binary.LittleEndian.PutUint32(scratch[:4], uint32(len(k)))
		buf.Write(scratch[:4])
		buf.WriteString(k)
		binary.LittleEndian.PutUint64(scratch[:], math.Float64bits(row[k]))
		buf.Write(scratch[:])
	}

	return c.enc.EncodeAll(buf.Bytes(), nil)
}

func (c *rowCodec) decode(data []byte) (Row, error) {
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress row: %w", err)
	}

	if len(raw) < 4 {
		return nil, fmt.Errorf("row truncated: %d bytes", len(raw))
	}
	count := binary.LittleEndian.Uint32(raw)
	raw = raw[4:]

	row := make(Row, count)
	for i := uint32(0); i < count; i++ {
		if len(raw) < 4 {
			return nil, fmt.Errorf("row truncated at entry %d", i)
		}
		n := int(binary.LittleEndian.Uint32(raw))
		raw = raw[4:]
		if len(raw) < n+8 {
			return nil, fmt.Errorf("row truncated at entry %d", i)
		}
		key := string(raw[:n])
		row[key] = math.Float64frombits(binary.LittleEndian.Uint64(raw[n : n+8]))
		raw = raw[n+8:]
	}
	if len(raw) != 0 {
		return nil, fmt.Errorf("row has %d trailing bytes", len(raw))
	}
	return row, nil
}

func (c *rowCodec) close() {
	c.enc.Close()
	c.dec.Close()
}
