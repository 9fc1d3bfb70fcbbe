package protocol

// Records is a batch of TLV records. Snapshot scans hand out batches so a
// caller can relay stored envelopes without decoding them; the prefix and
// suffix helpers cut a batch at a byte budget.
type Records [][]byte

func (recs Records) recrem(total int64) (prelen int, prerem int64) {
	for len(recs) > prelen && int64(len(recs[prelen])) <= total {
		total -= int64(len(recs[prelen]))
		prelen++
	}
	prerem = total
	return
}

// WholeRecordPrefix returns the longest prefix of whole records that fits
// the byte limit, and how many bytes of the limit remain.
func (recs Records) WholeRecordPrefix(limit int64) (prefix Records, remainder int64) {
	prelen, remainder := recs.recrem(limit)
	prefix = recs[:prelen]
	return
}

// ExactSuffix returns the suffix starting total bytes into the batch. When
// the cut lands inside a record, the first returned record is trimmed (in
// a copy; the original batch is never modified).
func (recs Records) ExactSuffix(total int64) (suffix Records) {
	prelen, prerem := recs.recrem(total)
	suffix = recs[prelen:]
	if prerem != 0 {
		edited := make(Records, 1, len(suffix))
		edited[0] = suffix[0][prerem:]
		suffix = append(edited, suffix[1:]...)
	}
	return
}

// TotalLen is the byte size of the batch.
func (recs Records) TotalLen() (total int64) {
	for _, r := range recs {
		total += int64(len(r))
	}
	return
}
