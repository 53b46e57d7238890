package isobmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func drainAll(m *Muxer) []OutputChunk {
	var out []OutputChunk
	for {
		c, ok := m.NextOutput()
		if !ok {
			break
		}
		out = append(out, c)
	}
	return out
}

func buildOpusEntry() *Box {
	dOps := &Box{Type: TypeDOps, Config: &ConfigBox{Buffer: make([]byte, 11)}}
	return &Box{Type: TypeOpus, Audio: &AudioSampleEntry{
		DataReferenceIndex: 1, ChannelCount: 2, SampleSize: 16, SampleRate: 48000 << 16,
		Children: []*Box{dOps},
	}}
}

func TestMuxerFaststartSingleTrack(t *testing.T) {
	m := NewMuxer()
	id := m.AddTrack(MuxTrackConfig{TimeScale: 48000, Kind: KindAudio, SampleDescription: buildOpusEntry()})
	m.SetReservedMoovSize(EstimateMaxMoovSize(10, 0))

	require.Nil(t, m.Initialize())
	require.Equal(t, MuxInitialized, m.State())
	initOutputs := drainAll(m)
	require.NotEmpty(t, initOutputs)

	offset := initOutputs[len(initOutputs)-1].Position + int64(len(initOutputs[len(initOutputs)-1].Data))
	for i := 0; i < 10; i++ {
		require.Nil(t, m.AppendSample(id, offset, 64, 960, 0, true, 1))
		offset += 64
	}

	require.Nil(t, m.Finalize())
	require.Equal(t, MuxFinalized, m.State())
	finalOutputs := drainAll(m)
	require.NotEmpty(t, finalOutputs)

	// faststart: Finalize should only patch the reserved free-box region and
	// the mdat header, never append moov after the final sample's bytes.
	for _, c := range finalOutputs {
		require.Less(t, c.Position, offset, "faststart must not append moov after mdat")
	}
}

func TestMuxerPositionMismatchIsCallerContractError(t *testing.T) {
	m := NewMuxer()
	id := m.AddTrack(MuxTrackConfig{TimeScale: 48000, Kind: KindAudio, SampleDescription: buildOpusEntry()})
	require.Nil(t, m.Initialize())
	drainAll(m)

	err := m.AppendSample(id, 99999, 64, 960, 0, true, 1)
	require.NotNil(t, err)
	require.Equal(t, PositionMismatch, err.Code)
	require.Equal(t, MuxFailed, m.State())
}

func TestMuxerAppendBeforeInitializeFails(t *testing.T) {
	m := NewMuxer()
	id := m.AddTrack(MuxTrackConfig{TimeScale: 48000, Kind: KindAudio, SampleDescription: buildOpusEntry()})
	err := m.AppendSample(id, 0, 64, 960, 0, true, 1)
	require.NotNil(t, err)
	require.Equal(t, InvalidState, err.Code)
}

func TestMuxDemuxIdentity(t *testing.T) {
	m := NewMuxer()
	id := m.AddTrack(MuxTrackConfig{TimeScale: 30000, Kind: KindVideo, SampleDescription: &Box{
		Type: TypeAvc1, Visual: &VisualSampleEntry{DataReferenceIndex: 1, Width: 1920, Height: 1080,
			Children: []*Box{{Type: TypeAvcC, Config: &ConfigBox{Buffer: make([]byte, 16)}}}},
	}, Width: 1920, Height: 1080})

	require.Nil(t, m.Initialize())
	chunks := drainAll(m)
	var buf []byte
	for _, c := range chunks {
		buf = growAndWrite(buf, c)
	}
	nextOffset := int64(len(buf))

	sizes := []uint32{100, 120, 90, 110}
	for _, sz := range sizes {
		require.Nil(t, m.AppendSample(id, nextOffset, sz, 1001, 0, true, 1))
		buf = growAndWrite(buf, OutputChunk{Position: nextOffset, Data: make([]byte, sz)})
		nextOffset += int64(sz)
	}

	require.Nil(t, m.Finalize())
	for _, c := range drainAll(m) {
		buf = growAndWrite(buf, c)
	}

	d := NewDemuxer()
	driveToReady(t, d, buf)
	require.Equal(t, DemuxReady, d.State())

	tracks := d.Tracks()
	require.Len(t, tracks, 1)
	require.Equal(t, 4, tracks[0].Table().Count())

	var gotSizes []uint32
	for {
		ds, ok := d.NextSample()
		if !ok {
			break
		}
		gotSizes = append(gotSizes, ds.Sample.Size)
	}
	require.Equal(t, sizes, gotSizes)
}

// growAndWrite extends buf as needed so that c.Data lands at c.Position,
// mirroring what a real file's WriteAt would do.
func growAndWrite(buf []byte, c OutputChunk) []byte {
	end := c.Position + int64(len(c.Data))
	if int64(len(buf)) < end {
		grown := make([]byte, end)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[c.Position:end], c.Data)
	return buf
}
