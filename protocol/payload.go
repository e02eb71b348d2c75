package protocol

import (
	"encoding/binary"

	"github.com/zhukovaskychina/xmysql-driver/errkind"
)

// Reader decodes MySQL's primitive wire encodings from a payload buffer.
// It is a cursor over a byte slice, the same shape as the teacher's
// util.Read* helpers (server/util/buffer_reader.go) but collected behind a
// single type so callers don't thread a cursor int through every call.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf for sequential decoding starting at offset 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the number of unread bytes remaining.
func (r *Reader) Len() int { return len(r.buf) - r.pos }

// Bytes returns the remaining unread bytes without advancing the cursor.
func (r *Reader) Bytes() []byte { return r.buf[r.pos:] }

// Pos reports the current read offset, for error messages.
func (r *Reader) Pos() int { return r.pos }

func (r *Reader) need(n int) error {
	if r.Len() < n {
		return errkind.NewProtocolError(errkind.MalformedPacket, "short payload", nil)
	}
	return nil
}

// Byte reads a single byte.
func (r *Reader) Byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// PeekByte returns the next byte without consuming it.
func (r *Reader) PeekByte() (byte, bool) {
	if r.Len() < 1 {
		return 0, false
	}
	return r.buf[r.pos], true
}

// FixedBytes reads exactly n raw bytes.
func (r *Reader) FixedBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances the cursor by n bytes without returning them.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// Uint16 reads a fixed-width little-endian uint16.
func (r *Reader) Uint16() (uint16, error) {
	b, err := r.FixedBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint24 reads a fixed-width little-endian 3-byte unsigned integer.
func (r *Reader) Uint24() (uint32, error) {
	b, err := r.FixedBytes(3)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16, nil
}

// Uint32 reads a fixed-width little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.FixedBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 reads a fixed-width little-endian uint64.
func (r *Reader) Uint64() (uint64, error) {
	b, err := r.FixedBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// NullTerminatedString reads bytes up to (and consuming) the next 0x00.
func (r *Reader) NullTerminatedString() (string, error) {
	start := r.pos
	for r.pos < len(r.buf) {
		if r.buf[r.pos] == 0 {
			s := string(r.buf[start:r.pos])
			r.pos++
			return s, nil
		}
		r.pos++
	}
	return "", errkind.NewProtocolError(errkind.MalformedPacket, "unterminated string", nil)
}

// RestOfPacketString consumes every remaining byte as a string; used for
// the last field of a packet, which in MySQL's wire format carries no
// explicit length because the packet boundary supplies it.
func (r *Reader) RestOfPacketString() string {
	s := string(r.buf[r.pos:])
	r.pos = len(r.buf)
	return s
}

// RestOfPacketBytes is the []byte counterpart of RestOfPacketString.
func (r *Reader) RestOfPacketBytes() []byte {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}

// LengthEncodedInt decodes MySQL's length-encoded integer, per spec §4.3:
//
//	n < 251            -> one byte
//	n <= 2^16-1         -> 0xFC + 2 LE bytes
//	n <= 2^24-1         -> 0xFD + 3 LE bytes
//	else                -> 0xFE + 8 LE bytes
//
// isNull reports the 0xFB NULL marker, valid only in row-value context;
// callers decoding a length prefix that is never allowed to be NULL (e.g.
// a string length) must reject isNull themselves.
func (r *Reader) LengthEncodedInt() (value uint64, isNull bool, err error) {
	first, err := r.Byte()
	if err != nil {
		return 0, false, err
	}
	switch {
	case first < 0xfb:
		return uint64(first), false, nil
	case first == 0xfb:
		return 0, true, nil
	case first == 0xfc:
		v, err := r.Uint16()
		return uint64(v), false, err
	case first == 0xfd:
		v, err := r.Uint24()
		return uint64(v), false, err
	case first == 0xfe:
		v, err := r.Uint64()
		return v, false, err
	default:
		// 0xff is reserved/unused as a length prefix.
		return 0, false, errkind.NewProtocolError(errkind.MalformedPacket, "invalid length-encoded integer prefix 0xff", nil)
	}
}

// LengthEncodedString decodes a length-encoded integer followed by that
// many raw bytes, per spec §4.3.
func (r *Reader) LengthEncodedString() (string, bool, error) {
	n, isNull, err := r.LengthEncodedInt()
	if err != nil || isNull {
		return "", isNull, err
	}
	b, err := r.FixedBytes(int(n))
	if err != nil {
		return "", false, err
	}
	return string(b), false, nil
}

// LengthEncodedBytes is the []byte counterpart of LengthEncodedString.
func (r *Reader) LengthEncodedBytes() ([]byte, bool, error) {
	n, isNull, err := r.LengthEncodedInt()
	if err != nil || isNull {
		return nil, isNull, err
	}
	b, err := r.FixedBytes(int(n))
	if err != nil {
		return nil, false, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, false, nil
}

// Writer accumulates an outgoing payload using MySQL's primitive
// encodings. It mirrors the teacher's util.Write* helpers collected behind
// a single growable buffer instead of threading a []byte return value
// through every call site.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty Writer. size is an optional capacity hint.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// Bytes returns the accumulated payload.
func (w *Writer) Bytes() []byte { return w.buf }

// Len reports how many bytes have been written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Byte appends a single byte.
func (w *Writer) Byte(b byte) *Writer {
	w.buf = append(w.buf, b)
	return w
}

// RawBytes appends raw bytes verbatim.
func (w *Writer) RawBytes(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Zero appends n zero bytes, used for reserved/filler fields.
func (w *Writer) Zero(n int) *Writer {
	for i := 0; i < n; i++ {
		w.buf = append(w.buf, 0)
	}
	return w
}

// Uint16 appends a fixed-width little-endian uint16.
func (w *Writer) Uint16(v uint16) *Writer {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return w.RawBytes(b[:])
}

// Uint24 appends a fixed-width little-endian 3-byte unsigned integer.
func (w *Writer) Uint24(v uint32) *Writer {
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16))
	return w
}

// Uint32 appends a fixed-width little-endian uint32.
func (w *Writer) Uint32(v uint32) *Writer {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return w.RawBytes(b[:])
}

// Uint64 appends a fixed-width little-endian uint64.
func (w *Writer) Uint64(v uint64) *Writer {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return w.RawBytes(b[:])
}

// NullTerminatedString appends s followed by a 0x00 byte.
func (w *Writer) NullTerminatedString(s string) *Writer {
	w.buf = append(w.buf, []byte(s)...)
	w.buf = append(w.buf, 0)
	return w
}

// LengthEncodedInt appends value using the length-encoded integer scheme
// from spec §4.3. It never emits the 0xFB NULL marker; use NullMarker for
// that in row-value context.
func (w *Writer) LengthEncodedInt(value uint64) *Writer {
	switch {
	case value < 251:
		return w.Byte(byte(value))
	case value <= 0xffff:
		w.Byte(0xfc)
		return w.Uint16(uint16(value))
	case value <= 0xffffff:
		w.Byte(0xfd)
		return w.Uint24(uint32(value))
	default:
		w.Byte(0xfe)
		return w.Uint64(value)
	}
}

// NullMarker appends the 0xFB NULL sentinel valid in row-value context.
func (w *Writer) NullMarker() *Writer { return w.Byte(0xfb) }

// LengthEncodedString appends a length-encoded integer followed by s's
// bytes.
func (w *Writer) LengthEncodedString(s string) *Writer {
	w.LengthEncodedInt(uint64(len(s)))
	w.buf = append(w.buf, []byte(s)...)
	return w
}

// LengthEncodedBytes is the []byte counterpart of LengthEncodedString.
func (w *Writer) LengthEncodedBytes(b []byte) *Writer {
	w.LengthEncodedInt(uint64(len(b)))
	w.buf = append(w.buf, b...)
	return w
}
