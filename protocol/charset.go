package protocol

import (
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// Well-known collation ids from the server's character_set/collation
// catalog (SHOW COLLATION): the binary and UTF-8 ones, which pass through
// unchanged, and the ones whose character set is not UTF-8-compatible at
// the byte level and therefore needs re-encoding before a column value is
// safe to treat as a Go string.
const (
	collationLatin1Swedish  uint16 = 8
	collationBinary         uint16 = 63
	collationUTF8General    uint16 = 33
	collationUTF8mb4General uint16 = 45
	collationUTF8mb4Unicode uint16 = 224
	collationGBK            uint16 = 28
	collationBig5           uint16 = 1
	collationSJIS           uint16 = 13
	collationEUCKR          uint16 = 19
)

// nonUTF8Encodings maps a collation id to the x/text encoding needed to
// convert the server's bytes to UTF-8. Collations not listed here are
// assumed already UTF-8 (utf8/utf8mb4 family) or opaque (binary), and
// pass through unchanged.
var nonUTF8Encodings = map[uint16]encoding.Encoding{
	collationLatin1Swedish: charmap.Windows1252,
	collationGBK:           simplifiedchinese.GBK,
	collationBig5:          traditionalchinese.Big5,
	collationSJIS:          japanese.ShiftJIS,
	collationEUCKR:         korean.EUCKR,
}

// DecodeCharsetString converts raw, a column's raw wire bytes, from the
// character set named by collationID to a UTF-8 Go string. Columns whose
// collation is already UTF-8 (or binary/opaque) pass through verbatim —
// only the collations listed in nonUTF8Encodings (latin1 included) go
// through the x/text tables.
func DecodeCharsetString(raw []byte, collationID uint16) (string, error) {
	enc, ok := nonUTF8Encodings[collationID]
	if !ok {
		return string(raw), nil
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", err
	}
	return string(out), nil
}
