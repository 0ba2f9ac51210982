// Package wire defines the byte-exact messages exchanged between coordinator
// and worker.
//
// Discovery uses two ASCII literals over UDP. The task exchange is one
// fixed-size request and one fixed-size response over a fresh TCP
// connection:
//
//	Task   (24 bytes): start | end | step   float64, little-endian
//	Result  (8 bytes): value                float64, little-endian
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/tutu-network/riemann/internal/domain"
)

const (
	// ProbeLiteral is broadcast by the coordinator.
	ProbeLiteral = "DISCOVERY_REQUEST"
	// ResponseLiteral is returned by a worker. Its content is never checked.
	ResponseLiteral = "DISCOVERY_RESPONSE"

	// TaskSize is the encoded length of a Task record.
	TaskSize = 24
	// ResultSize is the encoded length of a result record.
	ResultSize = 8
)

var order = binary.LittleEndian

// IsProbe reports whether a datagram is a discovery probe. Trailing NUL bytes
// are ignored so probes from senders that include a C string terminator match.
func IsProbe(payload []byte) bool {
	return bytes.Equal(bytes.TrimRight(payload, "\x00"), []byte(ProbeLiteral))
}

// EncodeTask returns the 24-byte record for t.
func EncodeTask(t domain.Task) []byte {
	b := make([]byte, TaskSize)
	order.PutUint64(b[0:8], math.Float64bits(t.Start))
	order.PutUint64(b[8:16], math.Float64bits(t.End))
	order.PutUint64(b[16:24], math.Float64bits(t.Step))
	return b
}

// DecodeTask parses a Task record. Extra trailing bytes are ignored.
func DecodeTask(b []byte) (domain.Task, error) {
	if len(b) < TaskSize {
		return domain.Task{}, fmt.Errorf("%w: task has %d of %d bytes", domain.ErrShortRecord, len(b), TaskSize)
	}
	return domain.Task{
		Start: math.Float64frombits(order.Uint64(b[0:8])),
		End:   math.Float64frombits(order.Uint64(b[8:16])),
		Step:  math.Float64frombits(order.Uint64(b[16:24])),
	}, nil
}

// EncodeResult returns the 8-byte record for v.
func EncodeResult(v float64) []byte {
	b := make([]byte, ResultSize)
	order.PutUint64(b, math.Float64bits(v))
	return b
}

// DecodeResult parses a result record.
func DecodeResult(b []byte) (float64, error) {
	if len(b) < ResultSize {
		return 0, fmt.Errorf("%w: result has %d of %d bytes", domain.ErrShortRecord, len(b), ResultSize)
	}
	return math.Float64frombits(order.Uint64(b[:ResultSize])), nil
}

// WriteTask writes one Task record to w.
func WriteTask(w io.Writer, t domain.Task) error {
	_, err := w.Write(EncodeTask(t))
	return err
}

// ReadTask reads exactly one Task record from r. A short read yields
// domain.ErrShortRecord wrapped around the underlying io error.
func ReadTask(r io.Reader) (domain.Task, error) {
	buf := make([]byte, TaskSize)
	if n, err := io.ReadFull(r, buf); err != nil {
		return domain.Task{}, fmt.Errorf("%w: read %d of %d bytes: %w", domain.ErrShortRecord, n, TaskSize, err)
	}
	return DecodeTask(buf)
}

// WriteResult writes one result record to w.
func WriteResult(w io.Writer, v float64) error {
	_, err := w.Write(EncodeResult(v))
	return err
}

// ReadResult reads exactly one result record from r.
func ReadResult(r io.Reader) (float64, error) {
	buf := make([]byte, ResultSize)
	if n, err := io.ReadFull(r, buf); err != nil {
		return 0, fmt.Errorf("%w: read %d of %d bytes: %w", domain.ErrShortRecord, n, ResultSize, err)
	}
	return DecodeResult(buf)
}
