package domain

// EstimateKey identifies the exact (stations, params, start, end,
// granularity) tuple that produced an estimate.
type EstimateKey string

// EstimateKeyFor canonicalizes the full export tuple of the live
// selection. Station and parameter order do not matter.
func EstimateKeyFor(s SelectionState) EstimateKey {
	return EstimateKey(string(s.Granularity) + "|" +
		canonicalIDs(s.Stations) + "|" +
		canonicalIDs(s.Params) + "|" +
		formatDateOrEmpty(s.Start) + "|" +
		formatDateOrEmpty(s.End))
}

// EstimateResult is a row/byte-size estimate for one export tuple.
type EstimateResult struct {
	Key    EstimateKey
	Rows   int     `json:"rows"`
	SizeKB int     `json:"size_kb"`
	SizeMB float64 `json:"size_mb"`
}

// ValidFor reports whether the estimate still matches the live selection.
func (r *EstimateResult) ValidFor(s SelectionState) bool {
	return r != nil && r.Key == EstimateKeyFor(s)
}
