package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthEncodedIntRoundTrip(t *testing.T) {
	values := []uint64{
		0, 1, 250,
		251, 252, 65535,
		65536, 16777215,
		16777216, 1 << 32, 1<<64 - 1,
	}

	for _, v := range values {
		w := NewWriter(16)
		w.LengthEncodedInt(v)

		r := NewReader(w.Bytes())
		got, isNull, err := r.LengthEncodedInt()
		require.NoError(t, err)
		assert.False(t, isNull)
		assert.Equal(t, v, got)
		assert.Equal(t, 0, r.Len(), "reader should consume exactly the encoded bytes")
	}
}

func TestLengthEncodedIntEncodingBoundaries(t *testing.T) {
	cases := []struct {
		value   uint64
		wantLen int
	}{
		{0, 1},
		{250, 1},
		{251, 3},
		{65535, 3},
		{65536, 4},
		{16777215, 4},
		{16777216, 9},
	}
	for _, c := range cases {
		w := NewWriter(16)
		w.LengthEncodedInt(c.value)
		assert.Equal(t, c.wantLen, w.Len(), "value %d", c.value)
	}
}

func TestLengthEncodedIntNullMarker(t *testing.T) {
	w := NewWriter(4)
	w.NullMarker()

	r := NewReader(w.Bytes())
	_, isNull, err := r.LengthEncodedInt()
	require.NoError(t, err)
	assert.True(t, isNull)
}

func TestLengthEncodedStringRoundTrip(t *testing.T) {
	inputs := []string{"", "a", "hello world", string(make([]byte, 500))}
	for _, s := range inputs {
		w := NewWriter(16)
		w.LengthEncodedString(s)

		r := NewReader(w.Bytes())
		got, isNull, err := r.LengthEncodedString()
		require.NoError(t, err)
		assert.False(t, isNull)
		assert.Equal(t, s, got)
	}
}

func TestNullTerminatedStringRoundTrip(t *testing.T) {
	w := NewWriter(16)
	w.NullTerminatedString("root")
	w.Byte(0x2a)

	r := NewReader(w.Bytes())
	s, err := r.NullTerminatedString()
	require.NoError(t, err)
	assert.Equal(t, "root", s)

	b, err := r.Byte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x2a), b)
}

func TestFixedWidthIntegersLittleEndian(t *testing.T) {
	w := NewWriter(32)
	w.Uint16(0x0102).Uint24(0x030405).Uint32(0x06070809).Uint64(0x0102030405060708)

	r := NewReader(w.Bytes())
	u16, err := r.Uint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0102), u16)

	u24, err := r.Uint24()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x030405), u24)

	u32, err := r.Uint32()
	require.NoError(t, err)
	assert.Equal(t, uint32(0x06070809), u32)

	u64, err := r.Uint64()
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0102030405060708), u64)
}

func TestReaderShortPayloadErrors(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, err := r.Uint32()
	assert.Error(t, err)
}

func TestRestOfPacketString(t *testing.T) {
	r := NewReader([]byte("abcdef"))
	_, _ = r.FixedBytes(2)
	assert.Equal(t, "cdef", r.RestOfPacketString())
	assert.Equal(t, 0, r.Len())
}
