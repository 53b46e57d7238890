package isobmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDescriptorSizeRoundTrip(t *testing.T) {
	for _, n := range []uint32{0, 1, 127, 128, 16384, 0x0FFFFFFF} {
		buf := encodeDescriptorSize(nil, n)
		got, pos, err := decodeDescriptorSize(buf, 0, len(buf))
		require.NoError(t, err)
		require.Equal(t, n, got)
		require.Equal(t, len(buf), pos)
	}
}

func TestDescriptorSizeRejectsTooManyContinuationBytes(t *testing.T) {
	buf := []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}
	_, _, err := decodeDescriptorSize(buf, 0, len(buf))
	require.Error(t, err)
}

func TestDescriptorSizeRejectsU32Overflow(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0x7F}
	_, _, err := decodeDescriptorSize(buf, 0, len(buf))
	require.Error(t, err)
}

func TestDescriptorSizeRejectsOverrunningParent(t *testing.T) {
	buf := encodeDescriptorSize(nil, 100)
	_, _, err := decodeDescriptorSize(buf, 0, len(buf)+50)
	require.Error(t, err)
}

func TestDecodeESDescriptorTree(t *testing.T) {
	// DecoderSpecificInfo: tag 0x05, size 2, payload AAC-LC @ 44.1kHz stereo
	dsi := append([]byte{descTagDecoderSpecificInfo}, encodeDescriptorSize(nil, 2)...)
	dsi = append(dsi, 0x12, 0x10)

	// DecoderConfigDescriptor: tag 0x04, oti=0x40 (AAC), 12 more fixed bytes, then dsi
	dcdPayload := append([]byte{0x40, 0x15, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, dsi...)
	dcd := append([]byte{descTagDecoderConfigDescriptor}, encodeDescriptorSize(nil, uint32(len(dcdPayload)))...)
	dcd = append(dcd, dcdPayload...)

	esPayload := append([]byte{0, 1, 0}, dcd...) // ES_ID, flags=0, no optional fields
	es := append([]byte{descTagESDescriptor}, encodeDescriptorSize(nil, uint32(len(esPayload)))...)
	es = append(es, esPayload...)

	d, next, err := decodeDescriptor(es, 0, len(es))
	require.NoError(t, err)
	require.Equal(t, len(es), next)
	require.Equal(t, byte(descTagESDescriptor), d.tag)

	dcdDesc, ok := d.decoderConfig()
	require.True(t, ok)
	require.Equal(t, byte(0x40), dcdDesc.oti)

	dsiDesc, ok := dcdDesc.decoderSpecificInfo()
	require.True(t, ok)
	require.Equal(t, []byte{0x12, 0x10}, dsiDesc.buffer)
}
