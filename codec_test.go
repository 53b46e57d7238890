package isobmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// buildEsdsPayload assembles an ES_Descriptor > DecoderConfigDescriptor >
// DecoderSpecificInfo tree for AAC-LC @ 44.1kHz stereo, the same shape
// TestDecodeESDescriptorTree exercises at the descriptor layer.
func buildEsdsPayload() []byte {
	dsi := append([]byte{descTagDecoderSpecificInfo}, encodeDescriptorSize(nil, 2)...)
	dsi = append(dsi, 0x12, 0x10)

	dcdPayload := append([]byte{0x40, 0x15, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}, dsi...)
	dcd := append([]byte{descTagDecoderConfigDescriptor}, encodeDescriptorSize(nil, uint32(len(dcdPayload)))...)
	dcd = append(dcd, dcdPayload...)

	esPayload := append([]byte{0, 1, 0}, dcd...)
	es := append([]byte{descTagESDescriptor}, encodeDescriptorSize(nil, uint32(len(esPayload)))...)
	return append(es, esPayload...)
}

func TestDecodeEsdsStripsFullBoxPrefixBeforeTag(t *testing.T) {
	box := &Box{Type: TypeEsds, Esds: &Esds{Buffer: buildEsdsPayload()}}
	buf, err := Encode(box, nil)
	require.NoError(t, err)

	got, err := Decode(buf, 0, len(buf), nil)
	require.NoError(t, err)
	require.Equal(t, "40.2", got.Esds.MimeCodec)

	out, err := Encode(got, nil)
	require.NoError(t, err)
	require.Equal(t, buf, out)
}

func TestCodecMimeReadsEsdsMimeCodec(t *testing.T) {
	entry := &Box{Type: TypeMp4a, Audio: &AudioSampleEntry{
		Children: []*Box{{Type: TypeEsds, Esds: &Esds{MimeCodec: "40.2", Buffer: buildEsdsPayload()}}},
	}}
	require.Equal(t, "mp4a.40.2", CodecMime(entry))
}
