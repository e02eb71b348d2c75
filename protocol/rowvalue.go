package protocol

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zhukovaskychina/xmysql-driver/errkind"
)

// Value is one decoded row cell. Exactly one of the typed fields is valid,
// selected by Kind; IsNull short-circuits all of them.
type Value struct {
	IsNull bool
	Kind   ValueKind
	I      int64
	U      uint64
	F      float64
	D      decimal.Decimal
	S      string
	B      []byte
	T      time.Time
}

// ValueKind discriminates Value's payload, per spec §4.3's row-decoding
// table (int/uint/float/decimal/string/bytes/time).
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInt
	KindUint
	KindFloat
	KindDecimal
	KindString
	KindBytes
	KindTime
)

// GuidFormat selects how a GUID-shaped column decodes, per spec §4.3's
// configurable GUID decoding. Only BINARY(16) columns are recognized as
// GUID-shaped (see isGuidColumn); CHAR(36) columns decode as ordinary
// strings whatever the format. Defined locally so
// protocol does not import the dsn package; session translates from
// dsn.GuidFormat when building a Session.
type GuidFormat int

const (
	GuidFormatCharString GuidFormat = iota
	GuidFormatBinary16
	GuidFormatBinary16LittleEndian
	GuidFormatTimeOrdered
)

// isGuidColumn reports whether col looks like a GUID/UUID column: a
// fixed-width BINARY(16) (decoded as TypeString/TypeVarString with the
// binary charset and that exact length).
func isGuidColumn(col *Column) bool {
	if col.ColumnLength != 16 {
		return false
	}
	switch col.Type {
	case TypeString, TypeVarString, TypeBlob, TypeTinyBlob:
		return col.CharacterSet == charsetBinary
	default:
		return false
	}
}

// charsetBinary is the collation id MySQL assigns to the binary charset,
// the marker a driver uses to tell BINARY(16) apart from CHAR(16).
const charsetBinary = 63

// decodeGuidBytes reinterprets a 16-byte GUID value per format, returning
// the canonical 36-char string form used by Value.S when format asks for
// one, or leaves raw bytes alone for the binary formats (byte-reordering
// only, no string conversion).
func decodeGuidBytes(b []byte, format GuidFormat) Value {
	if len(b) != 16 {
		return Value{Kind: KindBytes, B: b}
	}
	switch format {
	case GuidFormatBinary16:
		return Value{Kind: KindBytes, B: b}
	case GuidFormatBinary16LittleEndian:
		out := make([]byte, 16)
		copy(out, b)
		reverseBytes(out[0:4])
		reverseBytes(out[4:6])
		reverseBytes(out[6:8])
		return Value{Kind: KindBytes, B: out}
	case GuidFormatTimeOrdered:
		// Swap time_low/time_mid/time_hi_and_version into MySQL 8's
		// UUID_TO_BIN(x, 1) ordering: time_hi, time_mid, time_low, rest.
		out := make([]byte, 16)
		copy(out[0:2], b[6:8])
		copy(out[2:4], b[4:6])
		copy(out[4:8], b[0:4])
		copy(out[8:], b[8:])
		return Value{Kind: KindBytes, B: out}
	default: // GuidFormatCharString
		return Value{Kind: KindString, S: guidString(b)}
	}
}

func reverseBytes(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

func guidString(b []byte) string {
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x",
		b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// DecodeTextRow decodes one row of the text result-set protocol: every
// column is a length-encoded string (or the 0xfb NULL marker), per spec
// §4.3. Typed conversion of the string form is left to the caller/scanner,
// mirroring database/sql's driver.Value contract — but DECIMAL/NEWDECIMAL
// columns are parsed into decimal.Decimal here since that's the type the
// Domain Stack designates for exact-numeric columns, and GUID-shaped
// columns are reinterpreted per guidFormat.
func DecodeTextRow(payload []byte, columns []*Column, guidFormat GuidFormat) ([]Value, error) {
	r := NewReader(payload)
	values := make([]Value, len(columns))

	for i, col := range columns {
		s, isNull, err := r.LengthEncodedString()
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, fmt.Sprintf("row column %d", i), err)
		}
		if isNull {
			values[i] = Value{IsNull: true, Kind: KindNull}
			continue
		}

		switch {
		case col.Type == TypeDecimal || col.Type == TypeNewDecimal:
			d, err := decimal.NewFromString(s)
			if err != nil {
				return nil, errkind.NewConversionError("DECIMAL text", "decimal.Decimal", err)
			}
			values[i] = Value{Kind: KindDecimal, D: d}
		case isGuidColumn(col):
			values[i] = decodeGuidBytes([]byte(s), guidFormat)
		default:
			decoded, err := DecodeCharsetString([]byte(s), col.CharacterSet)
			if err != nil {
				return nil, errkind.NewConversionError("column charset", "utf8", err)
			}
			values[i] = Value{Kind: KindString, S: decoded}
		}
	}
	return values, nil
}

// nullBitmapOffset is the number of leading reserved bits in a binary
// protocol row's NULL bitmap, per spec §4.3.
const nullBitmapOffset = 2

// nullBitmapLen returns the byte length of a binary-row NULL bitmap for n
// columns.
func nullBitmapLen(n int) int {
	return (n + nullBitmapOffset + 7) / 8
}

// DecodeBinaryRow decodes one row of the binary (prepared-statement)
// result-set protocol: a leading 0x00 packet header, a NULL bitmap, then
// each non-NULL column encoded per its wire type, per spec §4.3.
func DecodeBinaryRow(payload []byte, columns []*Column, guidFormat GuidFormat) ([]Value, error) {
	r := NewReader(payload)
	if _, err := r.Byte(); err != nil { // 0x00 packet header
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "binary row header", err)
	}

	bitmapLen := nullBitmapLen(len(columns))
	bitmap, err := r.FixedBytes(bitmapLen)
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "binary row null bitmap", err)
	}

	isNull := func(i int) bool {
		bytePos := (i + nullBitmapOffset) / 8
		bitPos := uint((i + nullBitmapOffset) % 8)
		return bitmap[bytePos]&(1<<bitPos) != 0
	}

	values := make([]Value, len(columns))
	for i, col := range columns {
		if isNull(i) {
			values[i] = Value{IsNull: true, Kind: KindNull}
			continue
		}
		v, err := decodeBinaryValue(r, col, guidFormat)
		if err != nil {
			return nil, errkind.NewProtocolError(errkind.MalformedPacket, fmt.Sprintf("binary row column %d", i), err)
		}
		values[i] = v
	}
	return values, nil
}

func decodeBinaryValue(r *Reader, col *Column, guidFormat GuidFormat) (Value, error) {
	switch col.Type {
	case TypeTiny:
		b, err := r.Byte()
		if err != nil {
			return Value{}, err
		}
		if col.Unsigned() {
			return Value{Kind: KindUint, U: uint64(b)}, nil
		}
		return Value{Kind: KindInt, I: int64(int8(b))}, nil

	case TypeShort, TypeYear:
		v, err := r.Uint16()
		if err != nil {
			return Value{}, err
		}
		if col.Unsigned() {
			return Value{Kind: KindUint, U: uint64(v)}, nil
		}
		return Value{Kind: KindInt, I: int64(int16(v))}, nil

	case TypeLong, TypeInt24:
		v, err := r.Uint32()
		if err != nil {
			return Value{}, err
		}
		if col.Unsigned() {
			return Value{Kind: KindUint, U: uint64(v)}, nil
		}
		return Value{Kind: KindInt, I: int64(int32(v))}, nil

	case TypeLonglong:
		v, err := r.Uint64()
		if err != nil {
			return Value{}, err
		}
		if col.Unsigned() {
			return Value{Kind: KindUint, U: v}, nil
		}
		return Value{Kind: KindInt, I: int64(v)}, nil

	case TypeFloat:
		v, err := r.Uint32()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindFloat, F: float64(math.Float32frombits(v))}, nil

	case TypeDouble:
		v, err := r.Uint64()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindFloat, F: math.Float64frombits(v)}, nil

	case TypeDecimal, TypeNewDecimal:
		s, _, err := r.LengthEncodedString()
		if err != nil {
			return Value{}, err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return Value{}, errkind.NewConversionError("DECIMAL binary", "decimal.Decimal", err)
		}
		return Value{Kind: KindDecimal, D: d}, nil

	case TypeDate, TypeDatetime, TypeTimestamp:
		t, err := decodeBinaryDateTime(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindTime, T: t}, nil

	case TypeTime:
		t, err := decodeBinaryTime(r)
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindTime, T: t}, nil

	case TypeVarchar, TypeVarString, TypeString, TypeBlob, TypeTinyBlob,
		TypeMediumBlob, TypeLongBlob, TypeEnum, TypeSet, TypeJSON, TypeBit, TypeGeometry:
		b, _, err := r.LengthEncodedBytes()
		if err != nil {
			return Value{}, err
		}
		if isGuidColumn(col) {
			return decodeGuidBytes(b, guidFormat), nil
		}
		return Value{Kind: KindBytes, B: b}, nil

	default:
		s, _, err := r.LengthEncodedString()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: KindString, S: s}, nil
	}
}

// decodeBinaryDateTime decodes the variable-length DATE/DATETIME/TIMESTAMP
// encoding: a length byte (0, 4, 7, or 11) followed by that many fields.
func decodeBinaryDateTime(r *Reader) (time.Time, error) {
	length, err := r.Byte()
	if err != nil {
		return time.Time{}, err
	}
	if length == 0 {
		return time.Time{}, nil
	}

	year, err := r.Uint16()
	if err != nil {
		return time.Time{}, err
	}
	month, err := r.Byte()
	if err != nil {
		return time.Time{}, err
	}
	day, err := r.Byte()
	if err != nil {
		return time.Time{}, err
	}

	var hour, minute, second byte
	var microsecond uint32
	if length >= 7 {
		hour, err = r.Byte()
		if err != nil {
			return time.Time{}, err
		}
		minute, err = r.Byte()
		if err != nil {
			return time.Time{}, err
		}
		second, err = r.Byte()
		if err != nil {
			return time.Time{}, err
		}
	}
	if length >= 11 {
		microsecond, err = r.Uint32()
		if err != nil {
			return time.Time{}, err
		}
	}

	return time.Date(int(year), time.Month(month), int(day),
		int(hour), int(minute), int(second), int(microsecond)*1000, time.UTC), nil
}

// decodeBinaryTime decodes the variable-length TIME encoding: a length
// byte (0, 8, or 12), a sign flag, days, h/m/s, and optional microseconds.
// The result is expressed relative to time.Time's zero value (January 1,
// year 1) so callers can read it as a
// duration via time.Time's zero-value arithmetic.
func decodeBinaryTime(r *Reader) (time.Time, error) {
	length, err := r.Byte()
	if err != nil {
		return time.Time{}, err
	}
	if length == 0 {
		return time.Time{}, nil
	}

	isNegative, err := r.Byte()
	if err != nil {
		return time.Time{}, err
	}
	days, err := r.Uint32()
	if err != nil {
		return time.Time{}, err
	}
	hour, err := r.Byte()
	if err != nil {
		return time.Time{}, err
	}
	minute, err := r.Byte()
	if err != nil {
		return time.Time{}, err
	}
	second, err := r.Byte()
	if err != nil {
		return time.Time{}, err
	}

	var microsecond uint32
	if length >= 12 {
		microsecond, err = r.Uint32()
		if err != nil {
			return time.Time{}, err
		}
	}

	d := time.Duration(days)*24*time.Hour +
		time.Duration(hour)*time.Hour +
		time.Duration(minute)*time.Minute +
		time.Duration(second)*time.Second +
		time.Duration(microsecond)*time.Microsecond
	if isNegative != 0 {
		d = -d
	}
	return time.Time{}.Add(d), nil
}
