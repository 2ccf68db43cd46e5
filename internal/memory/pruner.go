package memory

// Partition splits the ledger into the retained tail (the most recent
// dynamicK interactions, order preserved) and the evicted prefix
// (oldest-first, ready for summarization). The retained slice is a fresh
// copy so truncation never aliases the evicted interactions.
func Partition(l Ledger, dynamicK int) (retain Ledger, evict []Interaction) {
	if dynamicK < 1 {
		dynamicK = 1
	}
	if len(l) <= dynamicK {
		retain = make(Ledger, len(l))
		copy(retain, l)
		return retain, nil
	}
	cut := len(l) - dynamicK
	evict = make([]Interaction, cut)
	copy(evict, l[:cut])
	retain = make(Ledger, dynamicK)
	copy(retain, l[cut:])
	return retain, evict
}

// TurnReport describes what one turn did to the session's memory. It is
// consumed by events and metrics; none of it is an error the caller must
// handle.
type TurnReport struct {
	TurnTokens   int
	BufferTokens int // ledger token sum after the turn (post-prune if any)
	DynamicK     int

	Overflow         bool  // buffer crossed the ceiling this turn
	Evicted          int   // interactions handed to the merger
	Pruned           bool  // merge succeeded and the ledger was truncated
	OverflowAccepted bool  // over ceiling but nothing evictable; kept as is
	MergeErr         error // why pruning was deferred, when it was
}
