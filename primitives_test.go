package isobmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReaderBoundsChecked(t *testing.T) {
	r := newReader([]byte{0x01, 0x02}, nil)
	v, err := r.u16()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0102), v)

	_, err = r.u8()
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, InvalidData, e.Code)
}

func TestFixedPointRoundTrip(t *testing.T) {
	require.InDelta(t, 1.0, newFixed16(1).Float(), 1e-9)
	require.InDelta(t, -2.5, newFixed16(-2.5).Float(), 1e-9)
	require.InDelta(t, 1.0, newFixed8(1).Float(), 1e-9)
	require.InDelta(t, 0.5, newFixed8(0.5).Float(), 1e-9)
}

func TestLanguagePackRoundTrip(t *testing.T) {
	require.Equal(t, "und", unpackLanguage(packLanguage("und")))
	require.Equal(t, "eng", unpackLanguage(packLanguage("eng")))
}

func TestCstring(t *testing.T) {
	require.Equal(t, []byte("hello"), cstring([]byte("hello\x00world")))
	require.Equal(t, []byte("noterm"), cstring([]byte("noterm")))

	dst := appendCstring(nil, []byte("hi"))
	require.Equal(t, []byte{'h', 'i', 0}, dst)
}

func TestBoxHeaderLargesize(t *testing.T) {
	dst := encodeBoxHeader(nil, TypeMdat, 0x100000000)
	require.Len(t, dst, 16)
	hdr, err := decodeBoxHeader(dst, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0x100000000), hdr.size)
	require.Equal(t, 16, hdr.largeLen)

	small := encodeBoxHeader(nil, TypeFree, 16)
	require.Len(t, small, 8)
	require.Equal(t, 8, headerLen(16))
	require.Equal(t, 16, headerLen(0x100000000))
}
