package isobmff

// Fixed sizes of the boxes a single track always carries, regardless of
// sample count: tkhd, mdia (mdhd+hdlr+minf(vmhd-or-smhd+dinf(dref(url))),
// stbl's own header plus stsd's header and one sample entry with a
// generously-sized codec configuration box. Rounded up rather than computed
// box-by-box, since this is a reserved-space estimate, not an exact layout.
const (
	mvhdSize          = 8 + 4 + 100 // header + fullbox prefix + v0 payload (96 bytes), rounded up
	trakFixedSize     = 300
	sampleEntrySize   = 8 + 78 + 64 // header + visual prefix + generous config-box room
	perSampleWorstCase = 4 /*stsz*/ + 8 /*stts run-length, one entry per sample*/ +
		12 /*stsc, one entry per sample*/ + 4 /*stco*/ + 4 /*stss*/ +
		8 /*ctts run-length, one entry per sample*/
)

// EstimateMaxMoovSize returns a closed-form upper bound, in bytes, on the
// size of a moov box describing one audio track and/or one video track
// with the given sample counts, assuming the worst case where every
// run-length table (stts/stsc/ctts) degenerates to one entry per sample.
// It is meant to size a muxer's reserved faststart placeholder (via
// SetReservedMoovSize) before any sample has been appended.
func EstimateMaxMoovSize(audioSampleCount, videoSampleCount int) uint32 {
	total := mvhdSize

	if videoSampleCount > 0 {
		total += trakFixedSize + sampleEntrySize
		total += perSampleWorstCase * videoSampleCount
	}
	if audioSampleCount > 0 {
		total += trakFixedSize + sampleEntrySize
		// Audio tracks rarely carry stss/ctts; still budget for them since
		// an estimate must hold even in that worst case.
		total += perSampleWorstCase * audioSampleCount
	}
	return uint32(total)
}
