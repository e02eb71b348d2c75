package protocol

import (
	"fmt"
	"io"

	"github.com/zhukovaskychina/xmysql-driver/errkind"
)

// MaxPayloadLen is the largest payload a single packet frame can carry
// before the codec must split it across a continuation frame, per spec
// §4.1 (2^24 - 1 bytes).
const MaxPayloadLen = 1<<24 - 1

// headerLen is the size of a packet header: 3-byte length, 1-byte sequence.
const headerLen = 4

// PacketReader frames an underlying byte stream into MySQL packets. The
// sequence counter is owned by the caller (the Session, per spec §4.1,
// "The sequence counter is owned by the session, not the codec"); the
// codec only validates that the received sequence id matches what it was
// told to expect.
type PacketReader struct {
	r io.Reader
}

// NewPacketReader wraps r for packet-framed reads.
func NewPacketReader(r io.Reader) *PacketReader {
	return &PacketReader{r: r}
}

// ReadPacket reads one logical packet, transparently reassembling any
// payload that was split across multiple 2^24-1-byte frames. wantSeq is
// the sequence id the caller expects for the first frame; it is
// incremented (mod 256) internally for each continuation frame read.
// ReadPacket returns the next expected sequence id alongside the payload,
// so the caller's counter stays in sync across a multi-frame read.
func (pr *PacketReader) ReadPacket(wantSeq byte) (payload []byte, nextSeq byte, err error) {
	seq := wantSeq
	var assembled []byte

	for {
		var header [headerLen]byte
		if _, err := io.ReadFull(pr.r, header[:]); err != nil {
			return nil, seq, errkind.NewTransportError(err)
		}

		length := uint32(header[0]) | uint32(header[1])<<8 | uint32(header[2])<<16
		gotSeq := header[3]

		if gotSeq != seq {
			return nil, seq, errkind.NewProtocolError(errkind.UnexpectedSequence,
				fmt.Sprintf("want %d got %d", seq, gotSeq), nil)
		}
		seq++

		frame := make([]byte, length)
		if length > 0 {
			if _, err := io.ReadFull(pr.r, frame); err != nil {
				return nil, seq, errkind.NewTransportError(err)
			}
		}

		assembled = append(assembled, frame...)

		if length < MaxPayloadLen {
			// Short (or empty) frame: this terminates the logical packet,
			// including the case of an exact multiple of MaxPayloadLen
			// where the spec requires a trailing empty frame.
			return assembled, seq, nil
		}
		// length == MaxPayloadLen: a continuation frame follows.
	}
}

// PacketWriter frames outgoing payloads into one or more MySQL packets,
// splitting any payload >= 2^24-1 bytes across continuation frames and
// appending the empty terminator frame the spec requires when the payload
// is an exact multiple of MaxPayloadLen.
type PacketWriter struct {
	w io.Writer
}

// NewPacketWriter wraps w for packet-framed writes.
func NewPacketWriter(w io.Writer) *PacketWriter {
	return &PacketWriter{w: w}
}

// WritePacket writes payload as one or more frames starting at sequence
// id seq, and returns the next expected sequence id.
func (pw *PacketWriter) WritePacket(payload []byte, seq byte) (nextSeq byte, err error) {
	offset := 0
	for {
		remaining := len(payload) - offset
		chunk := remaining
		if chunk > MaxPayloadLen {
			chunk = MaxPayloadLen
		}

		var header [headerLen]byte
		header[0] = byte(chunk)
		header[1] = byte(chunk >> 8)
		header[2] = byte(chunk >> 16)
		header[3] = seq

		if _, err := pw.w.Write(header[:]); err != nil {
			return seq, errkind.NewTransportError(err)
		}
		if chunk > 0 {
			if _, err := pw.w.Write(payload[offset : offset+chunk]); err != nil {
				return seq, errkind.NewTransportError(err)
			}
		}
		seq++
		offset += chunk

		if chunk < MaxPayloadLen {
			return seq, nil
		}
		if offset == len(payload) {
			// Exact multiple of MaxPayloadLen: emit the empty terminator.
			var term [headerLen]byte
			term[3] = seq
			if _, err := pw.w.Write(term[:]); err != nil {
				return seq, errkind.NewTransportError(err)
			}
			return seq + 1, nil
		}
	}
}
