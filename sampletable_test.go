package isobmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func buildStbl(stsc []StscEntry, stco []uint32, sizes []uint32, stts []SttsEntry) *Box {
	return &Box{Type: TypeStbl, Children: []*Box{
		{Type: TypeStsd, Stsd: &Stsd{Entries: []*Box{{Type: TypeAvc1, Visual: &VisualSampleEntry{}}}}},
		{Type: TypeStts, Stts: &Stts{Entries: stts}},
		{Type: TypeStsc, Stsc: &Stsc{Entries: stsc}},
		{Type: TypeStsz, Stsz: &Stsz{Count: uint32(len(sizes)), Entries: sizes}},
		{Type: TypeStco, Stco: &Stco{Entries: stco}},
	}}
}

func TestBuildSampleTableRunLengthExpansion(t *testing.T) {
	stbl := buildStbl(
		[]StscEntry{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescIndex: 1}},
		[]uint32{1000, 2000},
		[]uint32{10, 20, 30, 40},
		[]SttsEntry{{Count: 4, Delta: 512}},
	)
	table, err := buildSampleTable(stbl, nil)
	require.NoError(t, err)
	require.Equal(t, 4, table.Count())

	s0, err := table.Get(0)
	require.NoError(t, err)
	require.Equal(t, int64(1000), s0.Offset)
	require.Equal(t, uint32(10), s0.Size)
	require.Equal(t, int64(0), s0.Timestamp)

	s2, err := table.Get(2)
	require.NoError(t, err)
	require.Equal(t, int64(2000), s2.Offset)
	require.Equal(t, int64(1024), s2.Timestamp)
}

func TestBuildSampleTableConstantSampleSize(t *testing.T) {
	stbl := &Box{Type: TypeStbl, Children: []*Box{
		{Type: TypeStsd, Stsd: &Stsd{Entries: []*Box{{Type: TypeOpus, Audio: &AudioSampleEntry{}}}}},
		{Type: TypeStts, Stts: &Stts{Entries: []SttsEntry{{Count: 3, Delta: 20}}}},
		{Type: TypeStsc, Stsc: &Stsc{Entries: []StscEntry{{FirstChunk: 1, SamplesPerChunk: 3, SampleDescIndex: 1}}}},
		{Type: TypeStsz, Stsz: &Stsz{SampleSize: 3, Count: 3}},
		{Type: TypeStco, Stco: &Stco{Entries: []uint32{500}}},
	}}

	table, err := buildSampleTable(stbl, nil)
	require.NoError(t, err)
	require.Equal(t, 3, table.Count())

	for i, wantOffset := range []int64{500, 503, 506} {
		s, err := table.Get(i)
		require.NoError(t, err)
		require.Equal(t, uint32(3), s.Size)
		require.Equal(t, wantOffset, s.Offset)
	}
}

func TestBuildSampleTableEmptyStscWithSamplesIsInvalidData(t *testing.T) {
	stbl := buildStbl(nil, []uint32{1000}, []uint32{10, 20}, []SttsEntry{{Count: 2, Delta: 512}})
	_, err := buildSampleTable(stbl, nil)
	require.Error(t, err)
	var e *Error
	require.ErrorAs(t, err, &e)
	require.Equal(t, InvalidData, e.Code)
}

func TestSampleTableGetByTimestamp(t *testing.T) {
	stbl := buildStbl(
		[]StscEntry{{FirstChunk: 1, SamplesPerChunk: 4, SampleDescIndex: 1}},
		[]uint32{0},
		[]uint32{1, 1, 1, 1},
		[]SttsEntry{{Count: 4, Delta: 100}},
	)
	table, err := buildSampleTable(stbl, nil)
	require.NoError(t, err)

	s, err := table.GetByTimestamp(250)
	require.NoError(t, err)
	require.Equal(t, int64(200), s.Timestamp)

	_, err = table.GetByTimestamp(-1)
	require.Error(t, err)
}

func TestSampleTableIter(t *testing.T) {
	stbl := buildStbl(
		[]StscEntry{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescIndex: 1}},
		[]uint32{0, 10},
		[]uint32{5, 5},
		[]SttsEntry{{Count: 2, Delta: 1}},
	)
	table, err := buildSampleTable(stbl, nil)
	require.NoError(t, err)

	it := table.Iter()
	var count int
	for {
		_, ok := it.Next()
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 2, count)
}
