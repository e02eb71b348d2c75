package protocol

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/zhukovaskychina/xmysql-driver/errkind"
)

// compressHeaderLen is the size of a compressed-protocol packet header:
// 3-byte compressed length, 1-byte sequence, 3-byte uncompressed length.
const compressHeaderLen = 7

// smallPacketThreshold is the size below which the spec says a frame may
// be sent uncompressed with an uncompressed-length of zero, per spec §4.1
// ("Use Compression"). Grounded on the teacher's net/connection.go, which
// skips the deflate step for tiny writes to avoid inflating them.
const smallPacketThreshold = 50

// CompressWriter wraps an io.Writer, applying the zlib compression
// envelope around each outgoing payload before writing it to the wrapped
// writer (the raw connection). The caller still frames with PacketWriter
// first; CompressWriter sits between PacketWriter's output and the raw
// connection, exactly as the teacher layers writeFlusher around the getty
// session in net/connection.go.
type CompressWriter struct {
	w   io.Writer
	seq byte
}

// NewCompressWriter wraps w, starting the compressed-packet sequence at 0.
func NewCompressWriter(w io.Writer) *CompressWriter {
	return &CompressWriter{w: w}
}

// WriteFrame compresses and writes one already-packet-framed chunk.
func (cw *CompressWriter) WriteFrame(framed []byte) error {
	var payload []byte
	uncompressedLen := 0

	if len(framed) < smallPacketThreshold {
		payload = framed
	} else {
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(framed); err != nil {
			return errkind.NewProtocolError(errkind.CompressionError, "zlib write", err)
		}
		if err := zw.Close(); err != nil {
			return errkind.NewProtocolError(errkind.CompressionError, "zlib close", err)
		}
		if buf.Len() < len(framed) {
			payload = buf.Bytes()
			uncompressedLen = len(framed)
		} else {
			// Compression didn't help; send verbatim with ulen=0.
			payload = framed
		}
	}

	var header [compressHeaderLen]byte
	header[0] = byte(len(payload))
	header[1] = byte(len(payload) >> 8)
	header[2] = byte(len(payload) >> 16)
	header[3] = cw.seq
	header[4] = byte(uncompressedLen)
	header[5] = byte(uncompressedLen >> 8)
	header[6] = byte(uncompressedLen >> 16)
	cw.seq++

	if _, err := cw.w.Write(header[:]); err != nil {
		return errkind.NewTransportError(err)
	}
	if _, err := cw.w.Write(payload); err != nil {
		return errkind.NewTransportError(err)
	}
	return nil
}

// CompressReader is the read-side counterpart of CompressWriter.
type CompressReader struct {
	r   io.Reader
	seq byte
}

// NewCompressReader wraps r, starting the compressed-packet sequence at 0.
func NewCompressReader(r io.Reader) *CompressReader {
	return &CompressReader{r: r}
}

// ReadFrame reads and, if needed, inflates one compressed-protocol frame,
// returning the packet-framed bytes it contains.
func (cr *CompressReader) ReadFrame() ([]byte, error) {
	var header [compressHeaderLen]byte
	if _, err := io.ReadFull(cr.r, header[:]); err != nil {
		return nil, errkind.NewTransportError(err)
	}

	compLen := int(header[0]) | int(header[1])<<8 | int(header[2])<<16
	gotSeq := header[3]
	uncompLen := int(header[4]) | int(header[5])<<8 | int(header[6])<<16

	if gotSeq != cr.seq {
		return nil, errkind.NewProtocolError(errkind.UnexpectedSequence, "compressed frame sequence mismatch", nil)
	}
	cr.seq++

	payload := make([]byte, compLen)
	if compLen > 0 {
		if _, err := io.ReadFull(cr.r, payload); err != nil {
			return nil, errkind.NewTransportError(err)
		}
	}

	if uncompLen == 0 {
		return payload, nil
	}

	zr, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.CompressionError, "zlib init", err)
	}
	defer zr.Close()

	out := make([]byte, uncompLen)
	if _, err := io.ReadFull(zr, out); err != nil {
		return nil, errkind.NewProtocolError(errkind.CompressionError, "zlib inflate", err)
	}
	return out, nil
}

// CompressedWriter adapts a CompressWriter to io.Writer so PacketWriter can
// sit on top of it without knowing about the frame boundary. PacketWriter
// issues several small Write calls per logical packet (header, payload,
// sometimes a zero-length terminator); CompressedWriter buffers nothing and
// simply wraps each one in its own compressed frame, which is legal because
// the decompressed byte stream only needs to stay in order, not aligned to
// MySQL packet boundaries.
type CompressedWriter struct {
	cw *CompressWriter
}

// NewCompressedWriter wraps w as a plain io.Writer, framing every Write in
// the zlib compression envelope.
func NewCompressedWriter(w io.Writer) *CompressedWriter {
	return &CompressedWriter{cw: NewCompressWriter(w)}
}

func (w *CompressedWriter) Write(p []byte) (int, error) {
	if err := w.cw.WriteFrame(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// CompressedReader is the read-side counterpart of CompressedWriter: it
// satisfies io.Reader over a CompressReader by pulling whole frames and
// doling them out to the caller's buffer, carrying any remainder to the
// next Read.
type CompressedReader struct {
	cr  *CompressReader
	buf []byte
}

// NewCompressedReader wraps r as a plain io.Reader, inflating frames from
// the zlib compression envelope as needed.
func NewCompressedReader(r io.Reader) *CompressedReader {
	return &CompressedReader{cr: NewCompressReader(r)}
}

func (r *CompressedReader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		frame, err := r.cr.ReadFrame()
		if err != nil {
			return 0, err
		}
		r.buf = frame
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}
