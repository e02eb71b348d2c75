package protocol

import (
	"github.com/zhukovaskychina/xmysql-driver/errkind"
)

// Column describes one field of a result set, per spec §4.3's Column
// Definition packet. Grounded on the teacher's server/protocol/field.go,
// generalized from server-side encoding to client-side decoding.
type Column struct {
	Catalog      string
	Schema       string
	Table        string
	OrgTable     string
	Name         string
	OrgName      string
	CharacterSet uint16
	ColumnLength uint32
	Type         ColumnType
	Flags        ColumnFlags
	Decimals     byte
}

// Unsigned reports whether the column's integer values decode unsigned.
func (c *Column) Unsigned() bool { return c.Flags.Unsigned() }

// DecodeColumn parses one Column Definition packet payload.
func DecodeColumn(payload []byte) (*Column, error) {
	r := NewReader(payload)

	readLS := func(field string) (string, error) {
		s, isNull, err := r.LengthEncodedString()
		if err != nil {
			return "", errkind.NewProtocolError(errkind.MalformedPacket, "column "+field, err)
		}
		if isNull {
			return "", nil
		}
		return s, nil
	}

	catalog, err := readLS("catalog")
	if err != nil {
		return nil, err
	}
	schema, err := readLS("schema")
	if err != nil {
		return nil, err
	}
	table, err := readLS("table")
	if err != nil {
		return nil, err
	}
	orgTable, err := readLS("org_table")
	if err != nil {
		return nil, err
	}
	name, err := readLS("name")
	if err != nil {
		return nil, err
	}
	orgName, err := readLS("org_name")
	if err != nil {
		return nil, err
	}

	// length-encoded "fixed-length fields" block length; always 0x0c.
	if _, _, err := r.LengthEncodedInt(); err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "column fixed-length marker", err)
	}

	charset, err := r.Uint16()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "column charset", err)
	}
	colLen, err := r.Uint32()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "column length", err)
	}
	typeByte, err := r.Byte()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "column type", err)
	}
	flags, err := r.Uint16()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "column flags", err)
	}
	decimals, err := r.Byte()
	if err != nil {
		return nil, errkind.NewProtocolError(errkind.MalformedPacket, "column decimals", err)
	}

	return &Column{
		Catalog:      catalog,
		Schema:       schema,
		Table:        table,
		OrgTable:     orgTable,
		Name:         name,
		OrgName:      orgName,
		CharacterSet: charset,
		ColumnLength: colLen,
		Type:         ColumnType(typeByte),
		Flags:        ColumnFlags(flags),
		Decimals:     decimals,
	}, nil
}

// DecodeResultSetHeader parses the first packet of a result set: the
// column count, length-encoded.
func DecodeResultSetHeader(payload []byte) (columnCount uint64, err error) {
	r := NewReader(payload)
	columnCount, isNull, err := r.LengthEncodedInt()
	if err != nil {
		return 0, errkind.NewProtocolError(errkind.MalformedPacket, "result set column count", err)
	}
	if isNull {
		return 0, errkind.NewProtocolError(errkind.MalformedPacket, "result set column count is NULL", nil)
	}
	return columnCount, nil
}
