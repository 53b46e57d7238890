package isobmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	data := buildBenchFile(3)

	var boxes []*Box
	pos := 0
	for pos < len(data) {
		box, err := Decode(data, pos, len(data), nil)
		require.NoError(t, err)
		boxes = append(boxes, box)
		pos += int(box.Size)
	}
	require.Len(t, boxes, 3)
	require.Equal(t, TypeFtyp, boxes[0].Type)
	require.Equal(t, TypeMoov, boxes[1].Type)
	require.Equal(t, TypeMdat, boxes[2].Type)

	var out []byte
	var err error
	for _, b := range boxes {
		out, err = Encode(b, out)
		require.NoError(t, err)
	}
	require.Equal(t, data, out)
}

func TestDecodeUnknownBoxPreservedVerbatim(t *testing.T) {
	raw := []byte("hello unknown box payload")
	size := uint64(8 + len(raw))
	buf := encodeBoxHeader(nil, BoxType{'w', 'e', 'i', 'r'}, size)
	buf = append(buf, raw...)

	box, err := Decode(buf, 0, len(buf), nil)
	require.NoError(t, err)
	require.True(t, box.Unknown)
	require.Equal(t, raw, box.Raw)

	out, err := Encode(box, nil)
	require.NoError(t, err)
	require.Equal(t, buf, out)
}

func TestDecodeRejectsOversizedBox(t *testing.T) {
	buf := encodeBoxHeader(nil, TypeFree, 1000)
	buf = append(buf, make([]byte, 4)...) // far short of the declared 1000 bytes

	_, err := Decode(buf, 0, len(buf), nil)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, InvalidData, e.Code)
}

func TestDrefUrlEntryIsFullBox(t *testing.T) {
	dref := &Box{Type: TypeDref, Dref: &DrefBox{Entries: []DrefEntry{
		{Type: [4]byte{'u', 'r', 'l', ' '}, Flags: 7, Data: []byte("x")},
	}}}
	buf, err := Encode(dref, nil)
	require.NoError(t, err)

	box, err := Decode(buf, 0, len(buf), nil)
	require.NoError(t, err)
	require.Len(t, box.Dref.Entries, 1)
	require.Equal(t, uint32(7), box.Dref.Entries[0].Flags)
}
