package snapshot

import (
	"github.com/openalpha/lobcore/internal/book"
	"github.com/openalpha/lobcore/internal/cage"
	"github.com/openalpha/lobcore/internal/ladder"
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/precision"
)

// Build is the §4.I entry point (genSnap in the original): it dispatches
// on b.Phase to the call-auction, trading, or volatility-breaking builder,
// returning nil if the phase emits nothing (before OpenCall or after
// Ending, or Ending before the close price is ready).
func Build(b *book.Book, transactTime uint32) *Snapshot {
	var snap *Snapshot
	switch {
	case b.Phase < message.OpenCall || b.Phase > message.Ending:
		return nil
	case b.Phase.IsCallAuction():
		snap = buildCallAuction(b)
	case b.Phase == message.VolatilityBreaking:
		snap = buildTrading(b, true)
	case b.Phase == message.Ending:
		if !b.ClosePxReady {
			return nil
		}
		snap = buildTrading(b, false)
	default:
		snap = buildTrading(b, false)
	}
	snap.Phase = b.Phase
	snap.TransactTime = transactTime
	return snap
}

func commonFields(b *book.Book, spec precision.Spec, snap *Snapshot) {
	snap.SecurityID = b.Config.SecurityID
	snap.Exchange = b.Config.Exchange
	snap.NumTrades = b.Stats.NumTrades
	snap.OpenPx = precision.ToSnapshotPrice(b.Stats.OpenPx, spec)
	snap.HighPx = precision.ToSnapshotPrice(b.Stats.HighPx, spec)
	snap.LowPx = precision.ToSnapshotPrice(b.Stats.LowPx, spec)
	snap.LastPx = precision.ToSnapshotPrice(b.Stats.LastPx, spec)
	snap.UpLimitPx = precision.ToSnapshotPrice(b.Config.UpLimitPx, spec)
	snap.DnLimitPx = precision.ToSnapshotPrice(b.Config.DnLimitPx, spec)
	snap.PrevClose = precision.ToSnapshotPrice(b.Config.PrevClose, spec)
	clipSnap(snap, int64(0), uint64(b.Stats.TotalVolumeTrade), uint64(b.Stats.TotalValueTrade))
}

func specFor(b *book.Book) precision.Spec {
	spec, err := precision.Lookup(b.Config.Exchange, b.Config.Instrument)
	if err != nil {
		// Unsupported instruments abort before ever reaching snapshot
		// building (§7: Unsupported aborts the instrument); Lookup has
		// already succeeded once for every accepted message.
		return precision.Spec{}
	}
	return spec
}

// buildTrading is genTradingSnap (§4.I "Trading snapshot"): top-10 levels
// per side excluding cage-hidden levels, plus the rounded weighted average
// per side. isVolatilityBreaking zeroes every level and weight instead
// (§4.I "Volatility-breaking snapshot").
func buildTrading(b *book.Book, isVolatilityBreaking bool) *Snapshot {
	spec := specFor(b)
	snap := &Snapshot{}

	if !isVolatilityBreaking {
		snap.Bids = topLevels(b, message.Bid, spec)
		snap.Asks = topLevels(b, message.Ask, spec)

		if b.Weight(message.Bid).WeightQty != 0 {
			avg := b.Weight(message.Bid).Average()
			snap.BidWeightPx = int32(precision.ToSnapshotPrice(avg, spec))
		}
		snap.BidWeightQty = b.Weight(message.Bid).WeightQty

		var askWeightPx int64
		if b.Weight(message.Ask).WeightQty != 0 {
			avg := b.Weight(message.Ask).Average()
			askWeightPx = int64(precision.ToSnapshotPrice(avg, spec))
		}
		snap.AskWeightQty = b.Weight(message.Ask).WeightQty

		commonFields(b, spec, snap)
		clipSnap(snap, askWeightPx, uint64(b.Stats.TotalVolumeTrade), uint64(b.Stats.TotalValueTrade))
		if b.AskWeightPxUncertain {
			snap.AskWeightPxUncertain = true
		}
		return snap
	}

	commonFields(b, spec, snap)
	return snap
}

// topLevels walks side's ladder from its true extremum, skipping any level
// the cage controller currently hides (§4.D, §4.I: "re-scanning the ladder
// when the boundary is consumed" generalizes to every hidden level, not
// just the tracked ex_boundary), until 10 levels are collected or the
// ladder is exhausted.
func topLevels(b *book.Book, side message.Side, spec precision.Spec) [10]Level {
	var out [10]Level
	l := b.Ladder(side)
	price, qty, ok := l.Best()
	n := 0
	for ok && n < 10 {
		if !b.Config.IsGEM || cage.InCage(side, price, b.Cage.State().Side(side).RefPx) {
			out[n] = Level{Price: precision.ToSnapshotPrice(price, spec), Qty: qty}
			n++
		}
		price, qty, ok = l.NextAfter(price)
	}
	return out
}

// callAuctionState is the mutable scratch the cross-match loop advances;
// it mirrors the local _bid_max_level_price/_qty and _ask_min_level_price/
// _qty variables of genCallSnap so the loop reads the same way.
type callAuctionState struct {
	price uint32
	qty   uint64
	ok    bool
}

func advance(l ladder.Ladder, s *callAuctionState) {
	p, q, ok := l.NextAfter(s.price)
	s.price, s.qty, s.ok = p, q, ok
}

// buildCallAuction is genCallSnap (§4.I "Call-auction snapshot"): a
// virtual cross-match over the current ladders that computes a uniform
// match price/volume without mutating any book state, tie-breaking on the
// reference price, then reveals two levels per side (traded price×volume,
// then the residual).
func buildCallAuction(b *book.Book) *Snapshot {
	spec := specFor(b)
	snap := &Snapshot{}

	bidPx, bidQty, bidOk := b.Bids.Best()
	askPx, askQty, askOk := b.Asks.Best()
	bid := callAuctionState{price: bidPx, qty: bidQty, ok: bidOk}
	ask := callAuctionState{price: askPx, qty: askQty, ok: askOk}

	var price uint32
	switch {
	case !bid.ok && !ask.ok:
		price = 0
	case !bid.ok:
		price = ask.price
	case !ask.ok:
		price = bid.price
	default:
		price = 0
	}

	refPx := b.Config.PrevClose
	if b.Stats.NumTrades != 0 {
		refPx = b.Stats.LastPx
	}

	var volumeTrade uint64
	var bidRemain, askRemain uint64

	for {
		if bid.ok && ask.ok && bid.qty != 0 && ask.qty != 0 && bid.price >= ask.price {
			if bidRemain == 0 {
				bidRemain = bid.qty
			}
			if askRemain == 0 {
				askRemain = ask.qty
			}
			if bidRemain >= askRemain {
				volumeTrade += askRemain
				bidRemain -= askRemain
				askRemain = 0
			} else {
				volumeTrade += bidRemain
				askRemain -= bidRemain
				bidRemain = 0
			}

			if bidRemain == 0 && askRemain == 0 {
				if bid.price >= refPx && ask.price <= refPx {
					price = refPx
				} else if absDiffU32(bid.price, refPx) < absDiffU32(ask.price, refPx) {
					price = bid.price
				} else {
					price = ask.price
				}
			}

			if bidRemain == 0 {
				if askRemain != 0 {
					price = ask.price
				}
				bid.qty = 0
				advance(b.Bids, &bid)
			}
			if askRemain == 0 {
				if bidRemain != 0 {
					price = bid.price
				}
				ask.qty = 0
				advance(b.Asks, &ask)
			}
			continue
		}

		if askRemain == 0 && bidRemain == 0 {
			switch {
			case ask.ok && ask.qty != 0 && price >= ask.price:
				if !bid.ok || bid.qty == 0 || bid.price+1 < ask.price {
					price = ask.price - 1
				} else if ask.qty <= bid.qty {
					price = ask.price
					askRemain = ask.qty
				} else {
					price = bid.price
					bidRemain = bid.qty
				}
			case bid.ok && bid.qty != 0 && price <= bid.price:
				if !bid.ok || bid.qty == 0 || ask.price > bid.price+1 {
					price = bid.price + 1
				} else if bid.qty <= ask.qty {
					price = bid.price
					bidRemain = bid.qty
				} else {
					price = ask.price
					askRemain = ask.qty
				}
			}
		}
		break
	}

	if volumeTrade == 0 {
		// zero levels already present in snap.Bids/Asks zero-value
	} else {
		snap.Asks[0] = Level{Price: precision.ToSnapshotPrice(price, spec), Qty: volumeTrade}
		snap.Asks[1] = Level{Price: 0, Qty: askRemain}
		snap.Bids[0] = Level{Price: precision.ToSnapshotPrice(price, spec), Qty: volumeTrade}
		snap.Bids[1] = Level{Price: 0, Qty: bidRemain}
	}

	commonFields(b, spec, snap)

	// §4.I: "SZSE open-call snapshots report zero for weights; SSE always
	// reports." Grounded on axob.py genCallSnap, which zeroes both sides
	// unconditionally for SZSE (open or close call alike) and always
	// computes the rounded average for SSE — resolved here the same way
	// for both call phases since the source draws no OpenCall/CloseCall
	// distinction inside genCallSnap.
	if b.Config.Exchange == precision.SSE {
		if b.Weight(message.Bid).WeightQty != 0 {
			avg := b.Weight(message.Bid).Average()
			snap.BidWeightPx = int32(precision.ToSnapshotPrice(avg, spec))
		}
		snap.BidWeightQty = b.Weight(message.Bid).WeightQty
		var askWeightPx int64
		if b.Weight(message.Ask).WeightQty != 0 {
			avg := b.Weight(message.Ask).Average()
			askWeightPx = int64(precision.ToSnapshotPrice(avg, spec))
		}
		snap.AskWeightQty = b.Weight(message.Ask).WeightQty
		clipSnap(snap, askWeightPx, uint64(b.Stats.TotalVolumeTrade), uint64(b.Stats.TotalValueTrade))
	}

	return snap
}

func absDiffU32(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}
