// Package snapshot implements components 4.I (snapshot builder) and 4.J
// (snapshot reconciler): producing a Level-10 market-depth view of a
// book.Book at every state-changing event, and reconciling rebuilt
// snapshots against the exchange's own reference snapshots keyed by
// cumulative trade count.
package snapshot

import (
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/precision"
)

// Level is one (price, qty) pair of a snapshot's depth, in the exchange's
// snapshot-encoding decimal places (§4.I: SZSE 6dp, SSE 3dp).
type Level struct {
	Price uint64
	Qty   uint64
}

// Snapshot is one emitted Level-10 market-depth value (§6 Snapshot
// outputs). All prices are already rescaled to the exchange's snapshot
// encoding; the serializer that turns this into the 352/336/328-byte wire
// formats is an external collaborator (§6).
type Snapshot struct {
	SecurityID string
	Exchange   precision.Exchange
	Phase      message.Phase

	Bids [10]Level
	Asks [10]Level

	NumTrades        uint64
	TotalVolumeTrade uint32 // clipped to 32 bits (§4.I supplement, axob.py _clipUint32)
	TotalValueTrade  uint32

	OpenPx, HighPx, LowPx, LastPx uint64

	BidWeightPx  int32
	BidWeightQty uint64
	AskWeightPx  int32
	AskWeightQty uint64

	// AskWeightPxUncertain mirrors book.Book.AskWeightPxUncertain (§9(d)):
	// set when AskWeightPx was clamped post-hoc. The reconciler treats it as
	// a wildcard on either side of a comparison.
	AskWeightPxUncertain bool

	UpLimitPx, DnLimitPx uint64
	PrevClose            uint64

	TransactTime uint32
}

// FieldEqual reports whether s and o describe the same market state,
// ignoring TransactTime (checked separately by the reconciler's timestamp
// rule, §4.J) and tolerating AskWeightPx_uncertain on either side (§9(d)).
func (s *Snapshot) FieldEqual(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	// BidWeightQty/AskWeightQty are internal bookkeeping (§3 weighted
	// aggregates) with no counterpart on the exchange's own snapshot wire
	// format; only the derived weighted-average price is cross-checked.
	if s.Phase != o.Phase ||
		s.Bids != o.Bids || s.Asks != o.Asks ||
		s.NumTrades != o.NumTrades ||
		s.TotalVolumeTrade != o.TotalVolumeTrade ||
		s.TotalValueTrade != o.TotalValueTrade ||
		s.OpenPx != o.OpenPx || s.HighPx != o.HighPx || s.LowPx != o.LowPx || s.LastPx != o.LastPx ||
		s.BidWeightPx != o.BidWeightPx ||
		s.UpLimitPx != o.UpLimitPx || s.DnLimitPx != o.DnLimitPx || s.PrevClose != o.PrevClose {
		return false
	}
	if !s.AskWeightPxUncertain && !o.AskWeightPxUncertain && s.AskWeightPx != o.AskWeightPx {
		return false
	}
	return true
}

// clipSnap applies the §4.I clipping step (supplemented from axob.py
// _clipSnap/_clipInt32/_clipUint32): AskWeightPx is clamped to the 31-bit
// signed maximum and flagged uncertain; volume/value accumulators are
// clamped to unsigned 32 bits, the width the exchange's own encoding uses.
func clipSnap(snap *Snapshot, askWeightPx int64, totalVolume, totalValue uint64) {
	clipped, uncertain := precision.ClipAskWeightPx(askWeightPx)
	snap.AskWeightPx = int32(clipped)
	if uncertain {
		snap.AskWeightPxUncertain = true
	}
	snap.TotalVolumeTrade = precision.ClipUint32(totalVolume)
	snap.TotalValueTrade = precision.ClipUint32(totalValue)
}
