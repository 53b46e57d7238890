package isobmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func driveToReady(t *testing.T, d *Demuxer, data []byte) {
	t.Helper()
	for d.State() == DemuxNeedInput {
		pos, size := d.RequiredInput()
		if size == 0 {
			break
		}
		n := size
		if size < 0 {
			n = int64(len(data)) - pos
		}
		require.GreaterOrEqual(t, n, int64(0))
		d.HandleInput(pos, data[pos:pos+n])
	}
}

func TestDemuxerReachesReadyAndExposesTrack(t *testing.T) {
	data := buildBenchFile(5)
	d := NewDemuxer()
	driveToReady(t, d, data)

	require.Equal(t, DemuxReady, d.State())
	tracks := d.Tracks()
	require.Len(t, tracks, 1)
	require.Equal(t, uint32(1), tracks[0].ID)
	require.Equal(t, KindVideo, tracks[0].Kind)
	require.Equal(t, uint32(30000), tracks[0].TimeScale)
	require.Equal(t, 5, tracks[0].Table().Count())
}

func TestDemuxerNextSampleOrderAndExhaustion(t *testing.T) {
	data := buildBenchFile(3)
	d := NewDemuxer()
	driveToReady(t, d, data)
	require.Equal(t, DemuxReady, d.State())

	var timestamps []int64
	for {
		ds, ok := d.NextSample()
		if !ok {
			break
		}
		timestamps = append(timestamps, ds.Sample.Timestamp)
	}
	require.Equal(t, []int64{0, 1001, 2002}, timestamps)
	require.Equal(t, DemuxExhausted, d.State())

	_, ok := d.NextSample()
	require.False(t, ok)
}

func TestDemuxerFailsOnShortDelivery(t *testing.T) {
	data := buildBenchFile(1)
	d := NewDemuxer()

	pos, size := d.RequiredInput()
	require.Equal(t, int64(8), size)
	d.HandleInput(pos, data[pos:pos+4]) // deliver fewer bytes than requested

	require.Equal(t, DemuxFailed, d.State())
	require.NotNil(t, d.LastError())
}

func TestDemuxerFailsOnPositionMismatch(t *testing.T) {
	data := buildBenchFile(1)
	d := NewDemuxer()

	_, size := d.RequiredInput()
	d.HandleInput(17, data[0:size]) // wrong position

	require.Equal(t, DemuxFailed, d.State())
}

func TestDemuxerRejectsMissingMvhd(t *testing.T) {
	ftyp := &Box{Type: TypeFtyp, Ftyp: &Ftyp{MajorBrand: [4]byte{'i', 's', 'o', 'm'}}}
	moov := &Box{Type: TypeMoov} // no mvhd, no trak
	mdat := &Box{Type: TypeMdat, Raw: []byte{1, 2, 3}}

	var buf []byte
	var err error
	for _, b := range []*Box{ftyp, moov, mdat} {
		buf, err = Encode(b, buf)
		require.NoError(t, err)
	}

	d := NewDemuxer()
	driveToReady(t, d, buf)
	require.Equal(t, DemuxFailed, d.State())
	require.NotNil(t, d.LastError())
}
