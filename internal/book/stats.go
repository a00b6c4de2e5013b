package book

// TradeStats carries OHLC and cumulative trade statistics (§3).
type TradeStats struct {
	LastPx           uint32
	OpenPx           uint32
	HighPx           uint32
	LowPx            uint32
	NumTrades        uint64
	TotalVolumeTrade uint64
	TotalValueTrade  uint64 // widened per §6 ValueDP (4dp SZSE, 5dp SSE)
}

// ApplyTrade folds one execution's price/qty into the running OHLC and
// cumulative counters (§4.G items 1–2). value is the already-scaled trade
// value to accumulate into TotalValueTrade.
func (s *TradeStats) ApplyTrade(px uint32, qty uint64, value uint64) {
	s.NumTrades++
	s.TotalVolumeTrade += qty
	s.TotalValueTrade += value
	s.LastPx = px
	if s.OpenPx == 0 {
		s.OpenPx = px
	}
	if s.HighPx == 0 || px > s.HighPx {
		s.HighPx = px
	}
	if s.LowPx == 0 || px < s.LowPx {
		s.LowPx = px
	}
}

// WeightedAggregate accumulates Σqty and Σ(price·qty) over the visible
// (non-hidden) levels of one side, reported in snapshots as a rounded
// average (§3, §4.I).
type WeightedAggregate struct {
	WeightQty   uint64
	WeightValue uint64
}

// Add folds one level's (price, qty) into the aggregate.
func (w *WeightedAggregate) Add(price uint32, qty uint64) {
	w.WeightQty += qty
	w.WeightValue += uint64(price) * qty
}

// Sub removes one level's (price, qty) from the aggregate. Callers must
// not subtract more than was added.
func (w *WeightedAggregate) Sub(price uint32, qty uint64) {
	delta := uint64(price) * qty
	if delta > w.WeightValue {
		w.WeightValue = 0
	} else {
		w.WeightValue -= delta
	}
	if qty > w.WeightQty {
		w.WeightQty = 0
	} else {
		w.WeightQty -= qty
	}
}

// Average returns round_half_up(WeightValue / WeightQty), or 0 if the
// aggregate is empty (§4.I).
func (w *WeightedAggregate) Average() uint32 {
	if w.WeightQty == 0 {
		return 0
	}
	return uint32(roundHalfUp(w.WeightValue, w.WeightQty))
}

func roundHalfUp(numerator, denominator uint64) uint64 {
	return (numerator + denominator/2) / denominator
}

// IllegalOrderSet retains appl-seq-nums of GEM pre-IPO-5-day orders priced
// beyond the allowed range, discarded from the book but kept so later
// cancels resolve cleanly (§3).
type IllegalOrderSet struct {
	seqs map[uint32]struct{}
}

// NewIllegalOrderSet constructs an empty set.
func NewIllegalOrderSet() *IllegalOrderSet {
	return &IllegalOrderSet{seqs: make(map[uint32]struct{})}
}

// Add records seq as illegal.
func (s *IllegalOrderSet) Add(seq uint32) {
	s.seqs[seq] = struct{}{}
}

// Contains reports whether seq was recorded as illegal.
func (s *IllegalOrderSet) Contains(seq uint32) bool {
	_, ok := s.seqs[seq]
	return ok
}

// Remove discards seq from the set (absorbed on cancel, §4.H item 2).
func (s *IllegalOrderSet) Remove(seq uint32) {
	delete(s.seqs, seq)
}

// Len returns the number of tracked illegal seqs.
func (s *IllegalOrderSet) Len() int {
	return len(s.seqs)
}

// Seqs returns every tracked illegal seq, unordered. Used by
// internal/persist to checkpoint the set.
func (s *IllegalOrderSet) Seqs() []uint32 {
	out := make([]uint32, 0, len(s.seqs))
	for seq := range s.seqs {
		out = append(out, seq)
	}
	return out
}
