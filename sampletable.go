package isobmff

// SampleTable is the per-track accessor built from a fully decoded stbl
// box. It materializes one record per sample (§4.3 allows either a fully
// materialized array or on-the-fly run-length navigation; this library
// chooses the materialized form because C2 has already decoded stts/stsc/
// stco's typed entries, so a second raw-byte run-length walker would only
// duplicate that work) and answers Count/Get/GetByTimestamp/Iter queries.
type SampleTable struct {
	samples []tableSample
}

type tableSample struct {
	offset   int64
	size     uint32
	dts      int64
	duration uint32
	ctsDelta int32
	sync     bool
	descIdx  uint32
}

// Sample is one addressable unit of media, as exposed by the public API.
type Sample struct {
	Offset    int64
	Size      uint32
	Timestamp int64 // decode timestamp, media-timescale ticks
	Duration  uint32
	CTSDelta  int32 // composition offset from ctts; zero if absent
	Sync      bool
	DescIndex uint32 // 1-based index into the owning track's stsd entries
}

// buildSampleTable runs stsc's run-length expansion in lockstep with
// stts/ctts/stss/stco-or-co64, producing one record per sample counted by
// stsz/stz2. It is the run-length-expansion algorithm §4.3 calls for.
func buildSampleTable(stbl *Box, crumb []string) (*SampleTable, error) {
	stsdBox := stbl.Child(TypeStsd)
	sttsBox := stbl.Child(TypeStts)
	stscBox := stbl.Child(TypeStsc)
	stszBox := stbl.Child(TypeStsz)
	if stszBox == nil {
		stszBox = stbl.Child(TypeStz2)
	}
	stcoBox := stbl.Child(TypeStco)
	co64Box := stbl.Child(TypeCo64)
	stssBox := stbl.Child(TypeStss)
	cttsBox := stbl.Child(TypeCtts)

	if stsdBox == nil || sttsBox == nil || stscBox == nil || stszBox == nil {
		return nil, errInvalidData(crumb, "stbl: missing one of stsd/stts/stsc/stsz")
	}
	if stcoBox == nil && co64Box == nil {
		return nil, errInvalidData(crumb, "stbl: missing chunk offset table (stco/co64)")
	}

	sizes := stszBox.Stsz
	numSamples := int(sizes.Count)
	st := &SampleTable{samples: make([]tableSample, numSamples)}
	if numSamples == 0 {
		return st, nil
	}

	stsc := stscBox.Stsc.Entries
	if len(stsc) == 0 {
		// S6: a nonempty chunk-offset table with an empty stsc describes no
		// partition of samples over chunks — fatal, never a panic.
		return nil, errInvalidData(crumb, "stbl: stsc table is empty but samples exist")
	}
	var chunkOffsets64 []uint64
	var chunkOffsets32 []uint32
	numChunks := 0
	if co64Box != nil {
		chunkOffsets64 = co64Box.Co64.Entries
		numChunks = len(chunkOffsets64)
	} else {
		chunkOffsets32 = stcoBox.Stco.Entries
		numChunks = len(chunkOffsets32)
	}
	if numChunks == 0 {
		return nil, errInvalidData(crumb, "stbl: chunk offset table is empty but samples exist")
	}

	stts := sttsBox.Stts.Entries
	if len(stts) == 0 {
		return nil, errInvalidData(crumb, "stbl: stts table is empty but samples exist")
	}

	var ctts []CttsEntry
	if cttsBox != nil {
		ctts = cttsBox.Ctts.Entries
	}
	var syncSet map[uint32]bool
	if stssBox != nil {
		syncSet = make(map[uint32]bool, len(stssBox.Stss.SampleNumbers))
		for _, n := range stssBox.Stss.SampleNumbers {
			syncSet[n] = true
		}
	}

	chunkOffset := func(idx int) (int64, error) {
		if co64Box != nil {
			if idx >= len(chunkOffsets64) {
				return 0, errInvalidData(crumb, "stbl: chunk index %d exceeds co64 entries %d", idx, len(chunkOffsets64))
			}
			return int64(chunkOffsets64[idx]), nil
		}
		if idx >= len(chunkOffsets32) {
			return 0, errInvalidData(crumb, "stbl: chunk index %d exceeds stco entries %d", idx, len(chunkOffsets32))
		}
		return int64(chunkOffsets32[idx]), nil
	}

	stscIdx := 0
	curStsc := stsc[0]
	var nextFirstChunk uint32
	haveNext := len(stsc) > 1
	if haveNext {
		nextFirstChunk = stsc[1].FirstChunk
	}

	sttsIdx, sttsRemaining := 0, int(stts[0].Count)
	cttsIdx, cttsRemaining := 0, 0
	if len(ctts) > 0 {
		cttsRemaining = int(ctts[0].Count)
	}

	chunkIdx := uint32(1)
	off, err := chunkOffset(0)
	if err != nil {
		return nil, err
	}
	var offsetInChunk int64
	var sampleInChunk uint32
	var dts int64

	for i := 0; i < numSamples; i++ {
		var ctsDelta int32
		if len(ctts) > 0 && cttsRemaining > 0 {
			ctsDelta = ctts[cttsIdx].Offset
		}
		sync := syncSet == nil || syncSet[uint32(i+1)]
		size := sizes.SampleSize
		if size == 0 {
			size = sizes.Entries[i]
		}

		st.samples[i] = tableSample{
			offset:   off + offsetInChunk,
			size:     size,
			dts:      dts,
			duration: stts[sttsIdx].Delta,
			ctsDelta: ctsDelta,
			sync:     sync,
			descIdx:  curStsc.SampleDescIndex,
		}

		if i+1 >= numSamples {
			break
		}

		sampleInChunk++
		offsetInChunk += int64(size)
		if sampleInChunk >= curStsc.SamplesPerChunk {
			sampleInChunk = 0
			offsetInChunk = 0
			chunkIdx++
			off, err = chunkOffset(int(chunkIdx) - 1)
			if err != nil {
				return nil, err
			}
			if haveNext && chunkIdx >= nextFirstChunk {
				stscIdx++
				curStsc = stsc[stscIdx]
				haveNext = stscIdx+1 < len(stsc)
				if haveNext {
					nextFirstChunk = stsc[stscIdx+1].FirstChunk
				}
			}
		}

		dts += int64(stts[sttsIdx].Delta)
		sttsRemaining--
		if sttsRemaining <= 0 && sttsIdx+1 < len(stts) {
			sttsIdx++
			sttsRemaining = int(stts[sttsIdx].Count)
		}

		if len(ctts) > 0 {
			cttsRemaining--
			if cttsRemaining <= 0 && cttsIdx+1 < len(ctts) {
				cttsIdx++
				cttsRemaining = int(ctts[cttsIdx].Count)
			}
		}
	}

	return st, nil
}

// Count returns the number of samples in the table.
func (t *SampleTable) Count() int { return len(t.samples) }

// Get returns the sample at index in O(1) (the table is a materialized
// array, so the §4.3 O(log N) contract is trivially met).
func (t *SampleTable) Get(index int) (Sample, error) {
	if index < 0 || index >= len(t.samples) {
		return Sample{}, errInvalidState(nil, "sample index %d out of range [0,%d)", index, len(t.samples))
	}
	return t.samples[index].toSample(), nil
}

// GetByTimestamp returns the greatest sample whose decode timestamp is
// <= ts, via binary search over the monotone dts sequence.
func (t *SampleTable) GetByTimestamp(ts int64) (Sample, error) {
	lo, hi := 0, len(t.samples)-1
	best := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if t.samples[mid].dts <= ts {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	if best < 0 {
		return Sample{}, errInvalidState(nil, "no sample with timestamp <= %d", ts)
	}
	return t.samples[best].toSample(), nil
}

// sampleIter walks samples in increasing decode-time order, which for a
// materialized table is simply index order.
type sampleIter struct {
	table *SampleTable
	next  int
}

// Iter returns a fresh, independent iterator positioned before the first sample.
func (t *SampleTable) Iter() *sampleIter { return &sampleIter{table: t} }

// Next returns the next sample in order, or ok==false at exhaustion.
func (it *sampleIter) Next() (Sample, bool) {
	if it.next >= len(it.table.samples) {
		return Sample{}, false
	}
	s := it.table.samples[it.next].toSample()
	it.next++
	return s, true
}

func (s tableSample) toSample() Sample {
	return Sample{
		Offset:    s.offset,
		Size:      s.size,
		Timestamp: s.dts,
		Duration:  s.duration,
		CTSDelta:  s.ctsDelta,
		Sync:      s.sync,
		DescIndex: s.descIdx,
	}
}
