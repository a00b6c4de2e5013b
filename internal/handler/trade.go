package handler

import (
	"github.com/openalpha/lobcore/internal/book"
	"github.com/openalpha/lobcore/internal/message"
	"github.com/openalpha/lobcore/internal/precision"
)

// OnExecution implements the trade handler (§4.G). Executions carry no
// appl_seq_num of their own in the external-interface field table (§6), so
// unlike OnAddOrder this does not run the SZSE monotonicity assertion.
func OnExecution(b *book.Book, m message.Execution) (Outcome, error) {
	var out Outcome

	spec, err := precision.Lookup(m.Exchange, m.Instrument)
	if err != nil {
		return out, err
	}
	px, overflow, remainder := precision.NormalizePrice(m.LastPxRaw, b.Config.OverflowRaw, spec)
	if remainder {
		b.Logger.Error("execution price not evenly divisible by internal unit", "raw", m.LastPxRaw)
	}
	if overflow {
		b.Logger.Error("execution price overflow", "raw", m.LastPxRaw)
	}
	value := precision.TradeValue(px, m.LastQty, spec)
	b.Stats.ApplyTrade(px, uint64(m.LastQty), value)

	switch {
	case b.Hold.Occupied():
		held := b.Hold.Order()
		if held.ApplSeqNum != m.BidSeq && held.ApplSeqNum != m.OfferSeq {
			// Neither seq names the held order: a GEM-only scenario where
			// the held MARKET order is considered filled out by the time
			// this unrelated trade between two resting orders arrives.
			o := b.Hold.Take()
			insertVisible(b, o, true)
			out.PreSnapshot = true
			out.PreSnapshotTime = m.TransactTime
			dequeueBothSeqs(b, m)
			return out, nil
		}
		resolveHeldFill(b, held, m, px, &out)

	case b.Config.IsGEM && (b.Cage.State().Bid.WaitingForCage || b.Cage.State().Ask.WaitingForCage):
		dequeueBothSeqs(b, m)
		b.Cage.EnterCage(message.Bid, b.Stats.LastPx, b.Config.PrevClose)
		b.Cage.EnterCage(message.Ask, b.Stats.LastPx, b.Config.PrevClose)
		out.Snapshot = true
		out.SnapshotTime = m.TransactTime

	default:
		dequeueBothSeqs(b, m)
		if b.Phase.IsCallAuction() && !bookCrossing(b) {
			b.Phase = m.TradingPhase
		}
		out.Snapshot = true
		out.SnapshotTime = m.TransactTime
	}
	return out, nil
}

// resolveHeldFill is §4.G item 3's second and third bullets: the execution
// names the held order on one leg. Its qty is decremented (fully or
// partially); a held MARKET order is priced at the execution and marked
// traded; the opposite resting leg is removed via level_dequeue. Once the
// held order empties, or stops crossing the opposite side, it leaves the
// hold slot — emptied with nothing to insert, or inserted to rest.
func resolveHeldFill(b *book.Book, held *book.Order, m message.Execution, px uint32, out *Outcome) {
	matched := m.LastQty
	if matched > held.Qty {
		matched = held.Qty
	}
	held.Qty -= matched
	if held.Type == message.Market {
		held.Price = px
		b.Hold.MarkTraded()
	}

	oppSeq := m.OfferSeq
	if held.ApplSeqNum == m.OfferSeq {
		oppSeq = m.BidSeq
	}
	if oppOrder, ok := b.Directory.Get(oppSeq); ok {
		levelDequeue(b, oppOrder.Side, oppOrder.Price, uint64(matched))
		dec := matched
		if dec > oppOrder.Qty {
			dec = oppOrder.Qty
		}
		oppOrder.Qty -= dec
		if oppOrder.Qty == 0 {
			b.Directory.Remove(oppSeq)
		}
	}

	switch {
	case held.Qty == 0:
		b.Hold.Take()
		out.Snapshot = true
		out.SnapshotTime = m.TransactTime
	case !crossesOpposite(b, held.Side, held.Price):
		o := b.Hold.Take()
		insertVisible(b, o, true)
		out.Snapshot = true
		out.SnapshotTime = m.TransactTime
	}
}

// dequeueBothSeqs removes matched qty from both resting legs of an
// execution that does not involve the hold slot: the waiting_for_cage
// promotion path and the ordinary two-resting-order cross (§4.G items 4–5).
func dequeueBothSeqs(b *book.Book, m message.Execution) {
	if bidOrder, ok := b.Directory.Get(m.BidSeq); ok {
		levelDequeue(b, message.Bid, bidOrder.Price, uint64(m.LastQty))
		dec := m.LastQty
		if dec > bidOrder.Qty {
			dec = bidOrder.Qty
		}
		bidOrder.Qty -= dec
		if bidOrder.Qty == 0 {
			b.Directory.Remove(m.BidSeq)
		}
	}
	if askOrder, ok := b.Directory.Get(m.OfferSeq); ok {
		levelDequeue(b, message.Ask, askOrder.Price, uint64(m.LastQty))
		dec := m.LastQty
		if dec > askOrder.Qty {
			dec = askOrder.Qty
		}
		askOrder.Qty -= dec
		if askOrder.Qty == 0 {
			b.Directory.Remove(m.OfferSeq)
		}
	}
}

// bookCrossing reports whether both sides are non-empty and the book is
// crossing or touching (§8 property 2 requires strict best_bid < best_ask
// once crossing stops).
func bookCrossing(b *book.Book) bool {
	bidPx, _, bidOk := b.VisibleBest(message.Bid)
	askPx, _, askOk := b.VisibleBest(message.Ask)
	if !bidOk || !askOk {
		return false
	}
	return bidPx >= askPx
}
