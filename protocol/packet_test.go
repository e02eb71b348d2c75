package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPacketRoundTripSingleFrame(t *testing.T) {
	var buf bytes.Buffer
	pw := NewPacketWriter(&buf)
	next, err := pw.WritePacket([]byte("select 1"), 0)
	require.NoError(t, err)
	assert.Equal(t, byte(1), next)

	pr := NewPacketReader(&buf)
	payload, next, err := pr.ReadPacket(0)
	require.NoError(t, err)
	assert.Equal(t, "select 1", string(payload))
	assert.Equal(t, byte(1), next)
}

func TestPacketRoundTripExactMultipleOfMax(t *testing.T) {
	payload := make([]byte, MaxPayloadLen)
	for i := range payload {
		payload[i] = byte(i)
	}

	var buf bytes.Buffer
	pw := NewPacketWriter(&buf)
	next, err := pw.WritePacket(payload, 0)
	require.NoError(t, err)
	assert.Equal(t, byte(2), next, "one full frame + one empty terminator frame")

	pr := NewPacketReader(&buf)
	got, next, err := pr.ReadPacket(0)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, byte(2), next)
}

func TestPacketReadSequenceMismatch(t *testing.T) {
	var buf bytes.Buffer
	pw := NewPacketWriter(&buf)
	_, err := pw.WritePacket([]byte("ping"), 5)
	require.NoError(t, err)

	pr := NewPacketReader(&buf)
	_, _, err = pr.ReadPacket(0)
	assert.Error(t, err)
}

func TestOKPacketRoundTrip(t *testing.T) {
	w := NewWriter(32)
	w.Byte(0x00)
	w.LengthEncodedInt(7)
	w.LengthEncodedInt(0)
	w.Uint16(StatusAutocommit)
	w.Uint16(0)

	ok, err := DecodeOKPacket(w.Bytes(), ClientProtocol41)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), ok.AffectedRows)
	assert.False(t, ok.MoreResultsExists())
}

func TestErrPacketRoundTrip(t *testing.T) {
	w := NewWriter(32)
	w.Byte(0xff)
	w.Uint16(1045)
	w.Byte('#')
	w.RawBytes([]byte("28000"))
	w.RawBytes([]byte("Access denied"))

	e, err := DecodeErrPacket(w.Bytes(), ClientProtocol41)
	require.NoError(t, err)
	assert.Equal(t, uint16(1045), e.Code)
	assert.Equal(t, "28000", e.SQLState)
	assert.Equal(t, "Access denied", e.Message)

	se := e.AsServerError()
	assert.Equal(t, uint16(1045), se.Code)
}

func TestColumnRoundTrip(t *testing.T) {
	w := NewWriter(64)
	w.LengthEncodedString("def")
	w.LengthEncodedString("mydb")
	w.LengthEncodedString("t")
	w.LengthEncodedString("t")
	w.LengthEncodedString("id")
	w.LengthEncodedString("id")
	w.LengthEncodedInt(0x0c)
	w.Uint16(33)
	w.Uint32(11)
	w.Byte(byte(TypeLong))
	w.Uint16(uint16(FlagNotNull | FlagPriKey))
	w.Byte(0)

	col, err := DecodeColumn(w.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "id", col.Name)
	assert.Equal(t, TypeLong, col.Type)
	assert.False(t, col.Unsigned())
}

func TestDecodeTextRowWithNullAndDecimal(t *testing.T) {
	cols := []*Column{
		{Type: TypeVarchar},
		{Type: TypeNewDecimal},
	}
	w := NewWriter(32)
	w.NullMarker()
	w.LengthEncodedString("3.14")

	values, err := DecodeTextRow(w.Bytes(), cols, GuidFormatCharString)
	require.NoError(t, err)
	assert.True(t, values[0].IsNull)
	assert.Equal(t, KindDecimal, values[1].Kind)
	assert.Equal(t, "3.14", values[1].D.String())
}
